package bot

import (
	"context"

	"github.com/garyellow/messenger-nlu-bot/internal/messenger"
)

// Sender is the outbound surface the bot needs. *messenger.Client implements it.
type Sender interface {
	Send(ctx context.Context, payload any, endpoint, method string) error
	SendText(ctx context.Context, userID, text string, replies ...messenger.QuickReply) error
}

// TurnRunner starts an NLU turn without blocking the caller.
type TurnRunner interface {
	RunTurnAsync(ctx context.Context, userID, text string)
}

// Conversation is the handle passed to matcher callbacks and listeners.
// It is bound to the event's sender.
type Conversation interface {
	UserID() string
	Say(ctx context.Context, text string) error
	SayWithQuickReplies(ctx context.Context, text string, replies ...string) error
	Send(ctx context.Context, payload any, endpoint, method string) error
	// RunNLUTurn hands text to the NLU turn driver for this user.
	RunNLUTurn(ctx context.Context, text string)
}

type conversation struct {
	userID string
	sender Sender
	turns  TurnRunner
}

func newConversation(userID string, sender Sender, turns TurnRunner) *conversation {
	return &conversation{userID: userID, sender: sender, turns: turns}
}

func (c *conversation) UserID() string { return c.userID }

func (c *conversation) Say(ctx context.Context, text string) error {
	return c.sender.SendText(ctx, c.userID, text)
}

func (c *conversation) SayWithQuickReplies(ctx context.Context, text string, replies ...string) error {
	return c.sender.SendText(ctx, c.userID, text, messenger.TextReplies(replies...)...)
}

func (c *conversation) Send(ctx context.Context, payload any, endpoint, method string) error {
	return c.sender.Send(ctx, payload, endpoint, method)
}

func (c *conversation) RunNLUTurn(ctx context.Context, text string) {
	if c.turns == nil {
		return
	}
	c.turns.RunTurnAsync(ctx, c.userID, text)
}
