// Package bot dispatches Messenger events to keyword matchers, the NLU turn
// driver and event listeners.
package bot

import (
	"context"
	"sync"

	"github.com/garyellow/messenger-nlu-bot/internal/ctxutil"
	"github.com/garyellow/messenger-nlu-bot/internal/logger"
	"github.com/garyellow/messenger-nlu-bot/internal/messenger"
)

// Dispatch paths recorded in metrics.
const (
	PathHook       = "hook"
	PathMatcher    = "matcher"
	PathNLU        = "nlu"
	PathAttachment = "attachment"
	PathEmpty      = "empty"
)

// ConversationHook gets the first look at every message. Returning true
// claims the event: matchers, NLU and observers are skipped.
type ConversationHook interface {
	HandleConversation(ctx context.Context, event *messenger.Event) bool
}

// ConversationHookFunc adapts a function to ConversationHook.
type ConversationHookFunc func(ctx context.Context, event *messenger.Event) bool

// HandleConversation calls f.
func (f ConversationHookFunc) HandleConversation(ctx context.Context, event *messenger.Event) bool {
	return f(ctx, event)
}

// Listener receives events of one kind.
type Listener func(ctx context.Context, event *messenger.Event, conv Conversation)

// Observed is emitted once per dispatched message.
type Observed struct {
	Event        *messenger.Event
	Conversation Conversation
	// Captured is true when a matcher handled the message.
	Captured bool
}

// Observer receives Observed notifications.
type Observer func(ctx context.Context, obs Observed)

// DispatchRecorder records which path handled a message.
type DispatchRecorder interface {
	RecordDispatch(path string)
}

// RouterConfig holds the Router's collaborators. Sender and Logger are required.
type RouterConfig struct {
	Sender  Sender
	Turns   TurnRunner
	Hook    ConversationHook
	Logger  *logger.Logger
	Metrics DispatchRecorder
}

// Router dispatches events. Matchers run in registration order and the first
// match wins; unmatched text goes to the NLU turn driver.
// Registration is safe while events are being dispatched.
type Router struct {
	sender  Sender
	turns   TurnRunner
	hook    ConversationHook
	logger  *logger.Logger
	metrics DispatchRecorder

	mu        sync.RWMutex
	matchers  []matcher
	listeners map[messenger.EventKind][]Listener
	observers []Observer
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		sender:    cfg.Sender,
		turns:     cfg.Turns,
		hook:      cfg.Hook,
		logger:    cfg.Logger.WithModule("router"),
		metrics:   cfg.Metrics,
		listeners: make(map[messenger.EventKind][]Listener),
	}
}

// OnText registers a matcher. pattern must be a string, compared with Unicode
// case folding, or a *regexp.Regexp. Any other type panics.
func (r *Router) OnText(pattern any, cb Callback) {
	m := newMatcher(pattern, cb)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers = append(r.matchers, m)
}

// On registers a listener for an event kind.
func (r *Router) On(kind messenger.EventKind, l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[kind] = append(r.listeners[kind], l)
}

// OnMessage registers an observer notified after every dispatched message.
func (r *Router) OnMessage(o Observer) {
	if o == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// SetHook replaces the conversation hook. nil removes it.
func (r *Router) SetHook(h ConversationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

// HandleEvent routes one messaging event by kind.
func (r *Router) HandleEvent(ctx context.Context, event *messenger.Event) {
	ctx = ctxutil.WithUserID(ctx, event.Sender.ID)
	if mid := event.MessageID(); mid != "" {
		ctx = ctxutil.WithMessageID(ctx, mid)
	}

	switch kind := event.Kind(); kind {
	case messenger.KindMessage:
		r.HandleMessage(ctx, event)
		if event.Message.QuickReply != nil {
			r.emit(ctx, messenger.KindQuickReply, event)
		}
	case messenger.KindUnknown:
		r.logger.WarnContext(ctx, "Webhook received unknown event")
	default:
		r.emit(ctx, kind, event)
	}
}

// HandleMessage runs the dispatch chain for a message event.
func (r *Router) HandleMessage(ctx context.Context, event *messenger.Event) {
	r.mu.RLock()
	hook := r.hook
	matchers := r.matchers
	r.mu.RUnlock()

	if hook != nil && hook.HandleConversation(ctx, event) {
		r.record(PathHook)
		return
	}

	text := event.Text()
	if text == "" {
		if !event.HasAttachments() {
			r.record(PathEmpty)
			return
		}
		r.logger.InfoContext(ctx, "NLU could not resolve attachments, ignored",
			"attachments", len(event.Message.Attachments))
		r.record(PathAttachment)
		r.observe(ctx, event, false)
		return
	}

	conv := r.conversation(event.Sender.ID)
	for _, m := range matchers {
		info, ok := m.match(text)
		if !ok {
			continue
		}
		r.logger.DebugContext(ctx, "Matcher fired", "keyword", info.Keyword)
		m.cb(ctx, event, conv, info)
		r.record(PathMatcher)
		r.observe(ctx, event, true)
		return
	}

	r.record(PathNLU)
	conv.RunNLUTurn(ctx, text)
	r.observe(ctx, event, false)
}

func (r *Router) emit(ctx context.Context, kind messenger.EventKind, event *messenger.Event) {
	r.mu.RLock()
	listeners := r.listeners[kind]
	r.mu.RUnlock()
	if len(listeners) == 0 {
		r.logger.DebugContext(ctx, "No listener for event", "kind", string(kind))
		return
	}
	conv := r.conversation(event.Sender.ID)
	for _, l := range listeners {
		l(ctx, event, conv)
	}
}

func (r *Router) observe(ctx context.Context, event *messenger.Event, captured bool) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	if len(observers) == 0 {
		return
	}
	obs := Observed{Event: event, Conversation: r.conversation(event.Sender.ID), Captured: captured}
	for _, o := range observers {
		o(ctx, obs)
	}
}

func (r *Router) conversation(userID string) *conversation {
	return newConversation(userID, r.sender, r.turns)
}

func (r *Router) record(path string) {
	if r.metrics != nil {
		r.metrics.RecordDispatch(path)
	}
}
