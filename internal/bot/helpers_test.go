package bot

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/garyellow/messenger-nlu-bot/internal/logger"
	"github.com/garyellow/messenger-nlu-bot/internal/messenger"
	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

type sentText struct {
	UserID  string
	Text    string
	Replies []messenger.QuickReply
}

type fakeSender struct {
	mu    sync.Mutex
	texts []sentText
	raw   []any
	err   error
}

func (s *fakeSender) Send(_ context.Context, payload any, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, payload)
	return s.err
}

func (s *fakeSender) SendText(_ context.Context, userID, text string, replies ...messenger.QuickReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, sentText{UserID: userID, Text: text, Replies: replies})
	return s.err
}

func (s *fakeSender) Texts() []sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentText(nil), s.texts...)
}

type turnCall struct {
	UserID string
	Text   string
}

type fakeTurns struct {
	mu    sync.Mutex
	calls []turnCall
}

func (f *fakeTurns) RunTurnAsync(_ context.Context, userID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, turnCall{UserID: userID, Text: text})
}

func (f *fakeTurns) Calls() []turnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turnCall(nil), f.calls...)
}

type engineCall struct {
	SessionID string
	Text      string
	Context   nlu.Context
}

// fakeEngine returns scripted contexts and records every call.
type fakeEngine struct {
	mu    sync.Mutex
	calls []engineCall
	run   func(ctx context.Context, sessionID, text string, c nlu.Context) (nlu.Context, error)
}

func (e *fakeEngine) RunActions(ctx context.Context, sessionID, text string, c nlu.Context) (nlu.Context, error) {
	e.mu.Lock()
	e.calls = append(e.calls, engineCall{SessionID: sessionID, Text: text, Context: c.Clone()})
	run := e.run
	e.mu.Unlock()
	if run == nil {
		return c, nil
	}
	return run(ctx, sessionID, text, c)
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) Calls() []engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engineCall(nil), e.calls...)
}

// returns makes the engine answer with cs in order, repeating the last one.
func (e *fakeEngine) returns(cs ...nlu.Context) {
	n := 0
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run = func(context.Context, string, string, nlu.Context) (nlu.Context, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		c := cs[min(n, len(cs)-1)]
		n++
		return c.Clone(), nil
	}
}

type recorderSpy struct {
	mu        sync.Mutex
	dispatch  []string
	turns     []string
	drops     []string
	inFlight  int
	maxFlight int
}

func (r *recorderSpy) RecordDispatch(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatch = append(r.dispatch, path)
}

func (r *recorderSpy) RecordNLUTurn(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, result)
}

func (r *recorderSpy) TurnStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight++
	r.maxFlight = max(r.maxFlight, r.inFlight)
}

func (r *recorderSpy) TurnFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
}

func (r *recorderSpy) RecordRateLimiterDrop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drops = append(r.drops, name)
}

func (r *recorderSpy) Dispatch() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dispatch...)
}

func (r *recorderSpy) Turns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.turns...)
}

func textEvent(t *testing.T, userID, text string) *messenger.Event {
	t.Helper()
	return &messenger.Event{
		Sender:    messenger.User{ID: userID},
		Recipient: messenger.User{ID: "PAGE"},
		Message:   &messenger.Message{Mid: "mid." + text, Text: text},
	}
}

func decodeEvent(t *testing.T, raw string) *messenger.Event {
	t.Helper()
	var e messenger.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return &e
}
