// Package webhook handles Messenger webhook verification and event delivery.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyellow/messenger-nlu-bot/internal/config"
	"github.com/garyellow/messenger-nlu-bot/internal/ctxutil"
	"github.com/garyellow/messenger-nlu-bot/internal/logger"
	"github.com/garyellow/messenger-nlu-bot/internal/messenger"
	"github.com/garyellow/messenger-nlu-bot/internal/sentry"
)

// Request results recorded in metrics.
const (
	ResultOK               = "ok"
	ResultInvalidSignature = "invalid_signature"
	ResultMalformed        = "malformed"
	ResultTooLarge         = "too_large"
	ResultIgnored          = "ignored"
	ResultUnavailable      = "unavailable"
)

// Event kinds recorded in addition to messenger.EventKind values.
const (
	eventEcho      = "echo"
	eventDuplicate = "duplicate"
)

// DefaultMaxBodyBytes bounds a webhook body. Messenger batches stay far below this.
const DefaultMaxBodyBytes = 1 << 20

// EventHandler receives each accepted messaging event. *bot.Router implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *messenger.Event)
}

// Recorder receives webhook metrics. *metrics.Metrics implements it.
type Recorder interface {
	RecordWebhookRequest(result string)
	RecordWebhookEvent(kind string)
	RecordWebhookDuration(d time.Duration)
}

// HandlerConfig holds the Handler's required collaborators.
type HandlerConfig struct {
	AppSecret   string
	VerifyToken string
	Events      EventHandler
	Logger      *logger.Logger
	Metrics     Recorder
}

// Handler serves GET and POST /webhook.
type Handler struct {
	verifier *Verifier
	events   EventHandler
	logger   *logger.Logger
	metrics  Recorder

	broadcastEchoes bool
	maxEvents       int
	maxBodyBytes    int64
	timeout         time.Duration
	dedupeTTL       time.Duration
	dedupeSize      int
	dedupe          *dedupe

	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a webhook handler. Options override the defaults in config.
func NewHandler(cfg HandlerConfig, opts ...HandlerOption) *Handler {
	d := config.DefaultBotConfig()
	h := &Handler{
		verifier:     NewVerifier(cfg.AppSecret, cfg.VerifyToken),
		events:       cfg.Events,
		logger:       cfg.Logger.WithModule("webhook"),
		metrics:      cfg.Metrics,
		maxEvents:    d.MaxEventsPerWebhook,
		maxBodyBytes: DefaultMaxBodyBytes,
		timeout:      d.WebhookTimeout,
		dedupeTTL:    d.DedupeTTL,
		dedupeSize:   d.DedupeSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.dedupe = newDedupe(h.dedupeSize, h.dedupeTTL)
	return h
}

// Verify answers the platform's subscription handshake.
func (h *Handler) Verify(c *gin.Context) {
	if c.Query("hub.mode") == "subscribe" && h.verifier.CheckVerifyToken(c.Query("hub.verify_token")) {
		h.logger.Info("Webhook validation succeeded")
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	h.logger.Warn("Failed webhook validation. Make sure the validation tokens match")
	c.Status(http.StatusForbidden)
}

// Handle authenticates a delivery, acknowledges it and dispatches its events
// asynchronously. Every authenticated delivery is acknowledged with 200.
func (h *Handler) Handle(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closing {
		h.record(ResultUnavailable)
		c.Status(http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.record(ResultTooLarge)
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		h.record(ResultMalformed)
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(c.Request.Header, body); err != nil {
		h.logger.WithError(err).Warn("Couldn't validate the request signature")
		h.record(ResultInvalidSignature)
		c.Status(http.StatusForbidden)
		return
	}

	var payload messenger.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.WithError(err).Warn("Undecodable webhook body acknowledged and dropped")
		h.record(ResultMalformed)
		c.Status(http.StatusOK)
		return
	}
	if payload.Object != messenger.ObjectPage {
		h.logger.WithField("object", payload.Object).Debug("Ignoring non-page webhook")
		h.record(ResultIgnored)
		c.Status(http.StatusOK)
		return
	}

	events := h.collect(payload)
	h.record(ResultOK)
	c.Status(http.StatusOK)
	if len(events) == 0 {
		return
	}

	requestID, ok := ctxutil.GetRequestID(c.Request.Context())
	if !ok || requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := ctxutil.WithRequestID(context.Background(), requestID)

	h.wg.Go(func() { h.process(ctx, events) })
}

// collect flattens the batch, dropping echoes, redeliveries and anything past the event cap.
// Events past the cap are never marked as seen, so a redelivery of them still goes through.
func (h *Handler) collect(payload messenger.WebhookPayload) []messenger.Event {
	var (
		events    []messenger.Event
		truncated int
	)
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if ev.IsEcho() && !h.broadcastEchoes {
				h.recordEvent(eventEcho)
				continue
			}
			if len(events) >= h.maxEvents {
				truncated++
				continue
			}
			if h.dedupe.Seen(ev.MessageID()) {
				h.recordEvent(eventDuplicate)
				continue
			}
			events = append(events, ev)
		}
	}
	if truncated > 0 {
		h.logger.WithField("dropped_count", truncated).
			WithField("limit", h.maxEvents).
			Warn("Too many events in webhook batch; truncating")
	}
	return events
}

func (h *Handler) process(ctx context.Context, events []messenger.Event) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	for i := range events {
		h.dispatch(ctx, &events[i])
	}

	if h.metrics != nil {
		h.metrics.RecordWebhookDuration(time.Since(start))
	}
	h.logger.WithField("event_count", len(events)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		DebugContext(ctx, "Webhook batch processed")
}

// dispatch hands one event to the router. A panic is reported and the rest of the batch continues.
func (h *Handler) dispatch(ctx context.Context, ev *messenger.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("panic", r).ErrorContext(ctx, "Panic in async event processing")
			sentry.CapturePanic(ctxutil.WithUserID(ctx, ev.Sender.ID), r, map[string]string{"component": "webhook"})
		}
	}()

	h.recordEvent(string(ev.Kind()))
	if h.events != nil {
		h.events.HandleEvent(ctx, ev)
	}
}

// Shutdown rejects new deliveries and waits for in-flight batches or ctx.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookRequest(result)
	}
}

func (h *Handler) recordEvent(kind string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(kind)
	}
}
