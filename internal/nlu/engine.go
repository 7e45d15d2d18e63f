package nlu

import (
	"context"
	"errors"
	"log/slog"
)

// ActionEngine applies a Planner's tool calls to the session context.
type ActionEngine struct {
	planner Planner
	actions Actions
}

// NewActionEngine creates an engine. actions receives every send call.
func NewActionEngine(planner Planner, actions Actions) *ActionEngine {
	return &ActionEngine{planner: planner, actions: actions}
}

// RunActions plans the turn, then applies the calls in order to a copy of c.
// The input context is never mutated. Send failures are logged and do not
// abort the turn; the platform reports delivery problems separately.
func (e *ActionEngine) RunActions(ctx context.Context, sessionID, text string, c Context) (Context, error) {
	if e == nil || e.planner == nil {
		return nil, errors.New("nlu engine not configured")
	}

	calls, err := e.planner.Plan(ctx, Request{SessionID: sessionID, Text: text, Context: c})
	if err != nil {
		return nil, err
	}

	next := c.Clone()
	for _, call := range calls {
		switch call.Name {
		case ToolSend:
			msg, _ := call.Args["text"].(string)
			if msg == "" || e.actions == nil {
				continue
			}
			if err := e.actions.Send(ctx, sessionID, msg); err != nil {
				slog.WarnContext(ctx, "nlu send action failed", "error", err)
			}
		case ToolSetContext:
			key, _ := call.Args["key"].(string)
			if key == "" || key == DoneKey {
				continue
			}
			next[key] = call.Args["value"]
		case ToolClearContext:
			key, _ := call.Args["key"].(string)
			delete(next, key)
		case ToolFinish:
			next[DoneKey] = true
		default:
			slog.WarnContext(ctx, "ignoring unknown nlu action", "name", call.Name)
		}
	}
	return next, nil
}

// Close releases the planner.
func (e *ActionEngine) Close() error {
	if e == nil || e.planner == nil {
		return nil
	}
	return e.planner.Close()
}
