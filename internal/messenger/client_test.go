package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
)

type capturedRequest struct {
	Method string
	Path   string
	Token  string
	Body   map[string]any
}

func newTestClient(t *testing.T, status int, cfg ClientConfig) (*Client, *[]capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		reqs = append(reqs, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Token:  r.URL.Query().Get("access_token"),
			Body:   body,
		})
		mu.Unlock()

		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"Invalid OAuth access token."}}`)
			return
		}
		_, _ = io.WriteString(w, `{"recipient_id":"U1","message_id":"m1"}`)
	}))
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.AccessToken == "" {
		cfg.AccessToken = "page-token"
	}
	return NewClient(cfg), &reqs
}

type sendSpy struct {
	mu      sync.Mutex
	results []string
}

func (s *sendSpy) RecordSend(endpoint, result string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, endpoint+":"+result)
}

func TestClient_Send_Defaults(t *testing.T) {
	spy := &sendSpy{}
	c, reqs := newTestClient(t, http.StatusOK, ClientConfig{Metrics: spy})

	err := c.Send(context.Background(), map[string]any{"hello": "world"}, "", "")
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v2.6/me/messages", got.Path)
	assert.Equal(t, "page-token", got.Token)
	assert.Equal(t, "world", got.Body["hello"])
	assert.Equal(t, []string{"messages:success"}, spy.results)
}

func TestClient_Send_CustomEndpointAndVersion(t *testing.T) {
	c, reqs := newTestClient(t, http.StatusOK, ClientConfig{Version: "v19.0"})

	require.NoError(t, c.Send(context.Background(), struct{}{}, "messenger_profile", http.MethodDelete))
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/v19.0/me/messenger_profile", (*reqs)[0].Path)
}

func TestClient_Send_NonSuccessStatus(t *testing.T) {
	spy := &sendSpy{}
	c, _ := newTestClient(t, http.StatusBadRequest, ClientConfig{Metrics: spy})

	err := c.Send(context.Background(), struct{}{}, "", "")
	require.Error(t, err)

	var apiErr *domainerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Invalid OAuth")
	assert.ErrorIs(t, err, domainerrors.ErrSendFailed)
	assert.Equal(t, []string{"messages:api_error"}, spy.results)
}

func TestClient_Send_TransportErrorRedactsToken(t *testing.T) {
	c := NewClient(ClientConfig{
		AccessToken: "super-secret",
		BaseURL:     "http://127.0.0.1:1",
		Timeout:     time.Second,
	})

	err := c.Send(context.Background(), struct{}{}, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrSendFailed)
	assert.NotContains(t, err.Error(), "super-secret")
}

func TestClient_SendText_QuickReplies(t *testing.T) {
	c, reqs := newTestClient(t, http.StatusOK, ClientConfig{})

	err := c.SendText(context.Background(), "U1", "Hello world!", TextReplies("Red", "Green", "Blue")...)
	require.NoError(t, err)

	body := (*reqs)[0].Body
	assert.Equal(t, map[string]any{"id": "U1"}, body["recipient"])
	msg := body["message"].(map[string]any)
	assert.Equal(t, "Hello world!", msg["text"])
	replies := msg["quick_replies"].([]any)
	require.Len(t, replies, 3)
	assert.Equal(t, map[string]any{
		"content_type": "text",
		"title":        "Red",
		"payload":      "BOOTBOT_QR_RED",
	}, replies[0])
}

func TestClient_SendText_PlainHasNoQuickReplies(t *testing.T) {
	c, reqs := newTestClient(t, http.StatusOK, ClientConfig{})

	require.NoError(t, c.SendText(context.Background(), "U1", "hi"))
	msg := (*reqs)[0].Body["message"].(map[string]any)
	assert.NotContains(t, msg, "quick_replies")
}

func TestNormalizeQuickReplies(t *testing.T) {
	c := NewClient(ClientConfig{})

	got := c.NormalizeQuickReplies([]QuickReply{
		{Title: "Purple"},
		{Title: "Yellow", Payload: "CUSTOM_YELLOW"},
		{Title: "Image", ImageURL: "http://example.com/image.png"},
		{Title: "Dark blue!"},
		{ContentType: "location"},
		{ContentType: "user_email", Payload: "EMAIL"},
	})

	assert.Equal(t, []QuickReply{
		{ContentType: "text", Title: "Purple", Payload: "BOOTBOT_QR_PURPLE"},
		{ContentType: "text", Title: "Yellow", Payload: "CUSTOM_YELLOW"},
		{ContentType: "text", Title: "Image", Payload: "BOOTBOT_QR_IMAGE", ImageURL: "http://example.com/image.png"},
		{ContentType: "text", Title: "Dark blue!", Payload: "BOOTBOT_QR_DARKBLUE"},
		{ContentType: "location"},
		{ContentType: "user_email", Payload: "EMAIL"},
	}, got)

	custom := NewClient(ClientConfig{QuickReplyPrefix: "QR_"})
	assert.Equal(t, "QR_OK", custom.NormalizeQuickReplies(TextReplies("ok"))[0].Payload)
	assert.Nil(t, c.NormalizeQuickReplies(nil))
}

func TestClient_SetWhitelistDomain(t *testing.T) {
	c, reqs := newTestClient(t, http.StatusOK, ClientConfig{})

	require.NoError(t, c.SetWhitelistDomain(context.Background(), []string{"https://example.com"}))

	got := (*reqs)[0]
	assert.Equal(t, "/v2.6/me/thread_settings", got.Path)
	assert.Equal(t, "domain_whitelisting", got.Body["setting_type"])
	assert.Equal(t, "add", got.Body["domain_action_type"])
	assert.Equal(t, []any{"https://example.com"}, got.Body["whitelisted_domains"])
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	spy := &sendSpy{}
	c, _ := newTestClient(t, http.StatusOK, ClientConfig{RPS: 1, Metrics: spy})

	require.NoError(t, c.Send(context.Background(), struct{}{}, "", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Send(ctx, struct{}{}, "", "")
	require.Error(t, err)
	assert.True(t, domainerrors.IsRateLimitExceeded(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, strings.HasSuffix(spy.results[len(spy.results)-1], "rate_limited"))
}
