package bot

import (
	"context"
	"fmt"

	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
	"github.com/garyellow/messenger-nlu-bot/internal/session"
)

// SessionActions implements nlu.Actions by resolving the session to its user
// and sending through the Graph API.
type SessionActions struct {
	store  session.Store
	sender Sender
}

var _ nlu.Actions = (*SessionActions)(nil)

// NewSessionActions creates the engine callback target.
func NewSessionActions(store session.Store, sender Sender) *SessionActions {
	return &SessionActions{store: store, sender: sender}
}

// Send delivers text to the user owning sessionID.
func (a *SessionActions) Send(ctx context.Context, sessionID, text string) error {
	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session %s: %w", sessionID, err)
	}
	return a.sender.SendText(ctx, sess.UserID, text)
}
