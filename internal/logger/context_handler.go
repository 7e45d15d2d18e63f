package logger

import (
	"context"
	"log/slog"

	"github.com/garyellow/messenger-nlu-bot/internal/ctxutil"
)

// tracingAttrs lists the context values copied onto every record, in output order.
var tracingAttrs = []struct {
	key string
	get func(context.Context) string
}{
	{"user_id", ctxutil.GetUserID},
	{"session_id", ctxutil.GetSessionID},
	{"request_id", func(ctx context.Context) string {
		id, _ := ctxutil.GetRequestID(ctx)
		return id
	}},
	{"message_id", ctxutil.GetMessageID},
}

// ContextHandler adds the tracing ids carried by the context (sender, NLU
// session, webhook request, message mid) to each record before passing it on.
// Empty values are omitted.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range tracingAttrs {
		if v := a.get(ctx); v != "" {
			r.AddAttrs(slog.String(a.key, v))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
