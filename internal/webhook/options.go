package webhook

import (
	"time"

	"github.com/garyellow/messenger-nlu-bot/internal/config"
)

// HandlerOption is a functional option for configuring Handler.
type HandlerOption func(*Handler)

// WithBotConfig applies the webhook fields of a bot configuration.
func WithBotConfig(cfg config.BotConfig) HandlerOption {
	return func(h *Handler) {
		h.broadcastEchoes = cfg.BroadcastEchoes
		if cfg.MaxEventsPerWebhook > 0 {
			h.maxEvents = cfg.MaxEventsPerWebhook
		}
		if cfg.WebhookTimeout > 0 {
			h.timeout = cfg.WebhookTimeout
		}
		if cfg.DedupeTTL > 0 {
			h.dedupeTTL = cfg.DedupeTTL
		}
		if cfg.DedupeSize > 0 {
			h.dedupeSize = cfg.DedupeSize
		}
	}
}

// WithBroadcastEchoes dispatches the page's own echoed messages instead of skipping them.
func WithBroadcastEchoes(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.broadcastEchoes = enabled
	}
}

// WithProcessingTimeout bounds asynchronous processing of one delivery.
func WithProcessingTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = timeout
	}
}

// WithMaxBodyBytes caps the accepted request body.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// WithDedupe sizes the redelivery cache.
func WithDedupe(size int, ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		h.dedupeSize = size
		h.dedupeTTL = ttl
	}
}
