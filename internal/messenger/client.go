package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/garyellow/messenger-nlu-bot/internal/config"
	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
	"github.com/garyellow/messenger-nlu-bot/internal/ratelimit"
)

// Graph API endpoints under /me.
const (
	EndpointMessages       = "messages"
	EndpointThreadSettings = "thread_settings"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// SendRecorder receives per-request outcomes.
type SendRecorder interface {
	RecordSend(endpoint, result string, d time.Duration)
}

// ClientConfig configures a Client. Zero values fall back to the defaults in config.
type ClientConfig struct {
	AccessToken      string
	BaseURL          string
	Version          string
	Timeout          time.Duration
	RPS              float64
	QuickReplyPrefix string

	// HTTPClient overrides the default client; tests point it at httptest.
	HTTPClient *http.Client
	Metrics    SendRecorder
}

// Client sends requests to the Graph API on behalf of one page.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	token      string
	qrPrefix   string
	limiter    *ratelimit.Limiter
	metrics    SendRecorder
}

// NewClient creates a Graph API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultGraphAPIBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = config.DefaultGraphAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.SendRequest
	}
	if cfg.QuickReplyPrefix == "" {
		cfg.QuickReplyPrefix = config.DefaultQuickReplyPrefix
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *ratelimit.Limiter
	if cfg.RPS > 0 {
		limiter = ratelimit.New(cfg.RPS, cfg.RPS)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.Version,
		token:      cfg.AccessToken,
		qrPrefix:   cfg.QuickReplyPrefix,
		limiter:    limiter,
		metrics:    cfg.Metrics,
	}
}

// Send marshals payload as JSON and sends it to /{version}/me/{endpoint}.
// Empty endpoint means messages and empty method means POST.
func (c *Client) Send(ctx context.Context, payload any, endpoint, method string) error {
	if endpoint == "" {
		endpoint = EndpointMessages
	}
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", endpoint, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.record(endpoint, "rate_limited", 0)
			return fmt.Errorf("%w: %w", domainerrors.ErrRateLimitExceeded, err)
		}
	}

	u := fmt.Sprintf("%s/%s/me/%s?access_token=%s", c.baseURL, c.version, endpoint, url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, "error", time.Since(start))
		// url.Error embeds the URL, and with it the access token.
		return fmt.Errorf("%w: %s %s: %s", domainerrors.ErrSendFailed, method, endpoint, redact(err.Error(), c.token))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.record(endpoint, "api_error", time.Since(start))
		slog.WarnContext(ctx, "graph api request rejected",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"www_authenticate", resp.Header.Get("WWW-Authenticate"),
			"body", string(raw))
		return domainerrors.NewAPIError(endpoint, resp.StatusCode, string(raw))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	c.record(endpoint, "success", time.Since(start))
	return nil
}

func (c *Client) record(endpoint, result string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordSend(endpoint, result, d)
	}
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(secret), "REDACTED")
	return strings.ReplaceAll(s, secret, "REDACTED")
}

// SendText sends a text message, optionally with quick replies.
func (c *Client) SendText(ctx context.Context, userID, text string, replies ...QuickReply) error {
	return c.Send(ctx, SendRequest{
		Recipient: Recipient{ID: userID},
		Message: OutboundMessage{
			Text:         text,
			QuickReplies: c.NormalizeQuickReplies(replies),
		},
	}, EndpointMessages, http.MethodPost)
}

// SetWhitelistDomain adds domains to the page's whitelist (needed for webviews and plugins).
func (c *Client) SetWhitelistDomain(ctx context.Context, domains []string) error {
	return c.Send(ctx, map[string]any{
		"setting_type":        "domain_whitelisting",
		"whitelisted_domains": domains,
		"domain_action_type":  "add",
	}, EndpointThreadSettings, http.MethodPost)
}

// NormalizeQuickReplies fills in the content type and payload of text quick replies.
// A reply with only a title becomes a text reply whose payload is the prefix
// followed by the upper-cased alphanumeric characters of the title.
// Replies with a non-text content type pass through unchanged.
func (c *Client) NormalizeQuickReplies(replies []QuickReply) []QuickReply {
	if len(replies) == 0 {
		return nil
	}
	out := make([]QuickReply, len(replies))
	for i, r := range replies {
		if r.ContentType == "" && r.Title != "" {
			r.ContentType = "text"
		}
		if r.ContentType == "text" && r.Payload == "" {
			r.Payload = c.qrPrefix + payloadKey(r.Title)
		}
		out[i] = r
	}
	return out
}

// TextReplies builds title-only quick replies.
func TextReplies(titles ...string) []QuickReply {
	out := make([]QuickReply, len(titles))
	for i, t := range titles {
		out[i] = QuickReply{Title: t}
	}
	return out
}

func payloadKey(title string) string {
	var b strings.Builder
	for _, r := range title {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
