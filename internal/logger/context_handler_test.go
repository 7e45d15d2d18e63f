package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/messenger-nlu-bot/internal/ctxutil"
)

func logThroughContextHandler(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).InfoContext(ctx, "test message")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestContextHandler_AddsTracingIDs(t *testing.T) {
	ctx := ctxutil.WithUserID(context.Background(), "U12345")
	ctx = ctxutil.WithSessionID(ctx, "S67890")
	ctx = ctxutil.WithRequestID(ctx, "req-abc-123")
	ctx = ctxutil.WithMessageID(ctx, "mid.1")

	out := logThroughContextHandler(t, ctx)
	assert.Equal(t, "U12345", out["user_id"])
	assert.Equal(t, "S67890", out["session_id"])
	assert.Equal(t, "req-abc-123", out["request_id"])
	assert.Equal(t, "mid.1", out["message_id"])
}

func TestContextHandler_OmitsMissingAndEmpty(t *testing.T) {
	ctx := ctxutil.WithUserID(context.Background(), "")
	ctx = ctxutil.WithSessionID(ctx, "S1")

	out := logThroughContextHandler(t, ctx)
	assert.Equal(t, "S1", out["session_id"])
	for _, key := range []string{"user_id", "request_id", "message_id"} {
		assert.NotContains(t, out, key)
	}

	out = logThroughContextHandler(t, context.Background())
	for _, a := range tracingAttrs {
		assert.NotContains(t, out, a.key)
	}
}

func TestContextHandler_Enabled(t *testing.T) {
	h := NewContextHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo}))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewJSONHandler(&buf, nil))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "bot")}).WithGroup("turn"))
	logger.InfoContext(ctxutil.WithUserID(context.Background(), "U1"), "done", "matched", true)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "bot", out["service"])
	turn, ok := out["turn"].(map[string]any)
	require.True(t, ok, "expected turn group in %s", buf.String())
	assert.Equal(t, true, turn["matched"])
	// Attributes added by Handle land inside the open group.
	assert.Equal(t, "U1", turn["user_id"])
}
