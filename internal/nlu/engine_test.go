package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	sessionID string
	text      string
}

func recordingActions(out *[]sentMessage, err error) Actions {
	return ActionsFunc(func(_ context.Context, sessionID, text string) error {
		*out = append(*out, sentMessage{sessionID, text})
		return err
	})
}

func planReturning(calls ...ToolCall) *mockPlanner {
	return &mockPlanner{provider: ProviderGemini, planFunc: func(context.Context, Request) ([]ToolCall, error) {
		return calls, nil
	}}
}

func TestActionEngine_AppliesCallsInOrder(t *testing.T) {
	var sent []sentMessage
	planner := planReturning(
		ToolCall{Name: ToolSetContext, Args: map[string]any{"key": "color", "value": "red"}},
		ToolCall{Name: ToolSend, Args: map[string]any{"text": "Got it, red."}},
		ToolCall{Name: ToolClearContext, Args: map[string]any{"key": "size"}},
	)
	e := NewActionEngine(planner, recordingActions(&sent, nil))

	in := Context{"size": "L"}
	out, err := e.RunActions(context.Background(), "s1", "red please", in)

	require.NoError(t, err)
	assert.Equal(t, Context{"color": "red"}, out)
	assert.Equal(t, Context{"size": "L"}, in, "input context must not be mutated")
	assert.Equal(t, []sentMessage{{"s1", "Got it, red."}}, sent)
	assert.False(t, out.Done())
}

func TestActionEngine_Finish(t *testing.T) {
	e := NewActionEngine(planReturning(
		ToolCall{Name: ToolSend, Args: map[string]any{"text": "bye"}},
		ToolCall{Name: ToolFinish, Args: map[string]any{}},
	), nil)

	out, err := e.RunActions(context.Background(), "s1", "thanks", Context{})
	require.NoError(t, err)
	assert.True(t, out.Done())
}

func TestActionEngine_SetContextCannotForgeDone(t *testing.T) {
	e := NewActionEngine(planReturning(
		ToolCall{Name: ToolSetContext, Args: map[string]any{"key": DoneKey, "value": "yes"}},
	), nil)

	out, err := e.RunActions(context.Background(), "s1", "x", Context{})
	require.NoError(t, err)
	assert.False(t, out.Done())
}

func TestActionEngine_SendFailureDoesNotAbort(t *testing.T) {
	var sent []sentMessage
	e := NewActionEngine(planReturning(
		ToolCall{Name: ToolSend, Args: map[string]any{"text": "one"}},
		ToolCall{Name: ToolSetContext, Args: map[string]any{"key": "k", "value": "v"}},
	), recordingActions(&sent, errors.New("graph api down")))

	out, err := e.RunActions(context.Background(), "s1", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "v", out["k"])
	assert.Len(t, sent, 1)
}

func TestActionEngine_PlannerError(t *testing.T) {
	planner := &mockPlanner{provider: ProviderGroq, planFunc: func(context.Context, Request) ([]ToolCall, error) {
		return nil, errors.New("model down")
	}}
	_, err := NewActionEngine(planner, nil).RunActions(context.Background(), "s1", "x", Context{})
	assert.EqualError(t, err, "model down")
}

func TestActionEngine_PassesRequest(t *testing.T) {
	var got Request
	planner := &mockPlanner{provider: ProviderGroq, planFunc: func(_ context.Context, req Request) ([]ToolCall, error) {
		got = req
		return []ToolCall{{Name: ToolFinish}}, nil
	}}

	_, err := NewActionEngine(planner, nil).RunActions(context.Background(), "sess", "hello", Context{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, Request{SessionID: "sess", Text: "hello", Context: Context{"a": "b"}}, got)
}

func TestActionEngine_NilSafe(t *testing.T) {
	var e *ActionEngine
	_, err := e.RunActions(context.Background(), "s", "t", nil)
	assert.Error(t, err)
	assert.NoError(t, e.Close())
}
