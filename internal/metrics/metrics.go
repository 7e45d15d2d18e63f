// Package metrics defines the Prometheus metrics exported on /metrics.
// All Record* methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookEventsTotal     *prometheus.CounterVec
	WebhookDurationSeconds prometheus.Histogram

	// Dispatch metrics
	DispatchTotal *prometheus.CounterVec

	// NLU metrics
	NLUTurnsTotal          *prometheus.CounterVec
	NLUTurnDurationSeconds *prometheus.HistogramVec
	NLUFallbackTotal       *prometheus.CounterVec
	NLUTurnsInFlight       prometheus.Gauge

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsEvictedTotal prometheus.Counter

	// Outbound metrics
	SendTotal           *prometheus.CounterVec
	SendDurationSeconds *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_webhook_requests_total",
				Help: "Total webhook requests by result",
			},
			[]string{"result"}, // result: ok, invalid_signature, malformed, too_large, ignored, unavailable
		),

		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_webhook_events_total",
				Help: "Total messaging events received by kind",
			},
			[]string{"kind"}, // kind: message, postback, delivery, read, echo, duplicate, unknown, ...
		),

		WebhookDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bot_webhook_processing_seconds",
				Help:    "Asynchronous processing duration of one webhook delivery",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_dispatch_total",
				Help: "Message dispatch decisions by path",
			},
			[]string{"path"}, // path: hook, matcher, nlu, attachment, empty
		),

		NLUTurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_nlu_turns_total",
				Help: "NLU turns by result",
			},
			[]string{"result"}, // result: success, done, error, timeout, rate_limited, disabled
		),

		NLUTurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bot_nlu_turn_duration_seconds",
				Help:    "NLU engine call duration by provider",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"provider"},
		),

		NLUFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_nlu_fallback_total",
				Help: "NLU provider fallbacks",
			},
			[]string{"from", "to"},
		),

		NLUTurnsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_nlu_turns_in_flight",
				Help: "NLU turns currently running",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_sessions_active",
				Help: "Active NLU sessions",
			},
		),

		SessionsEvictedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_sessions_evicted_total",
				Help: "Sessions evicted after idling past the TTL",
			},
		),

		SendTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_send_total",
				Help: "Outbound Graph API calls by endpoint and result",
			},
			[]string{"endpoint", "result"}, // result: success, error, api_error, rate_limited
		),

		SendDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bot_send_duration_seconds",
				Help:    "Outbound Graph API call duration by endpoint",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: nlu_user
		),
	}
}

// RecordWebhookRequest records the outcome of one POST /webhook.
func (m *Metrics) RecordWebhookRequest(result string) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(result).Inc()
}

// RecordWebhookEvent records a received messaging event.
func (m *Metrics) RecordWebhookEvent(kind string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(kind).Inc()
}

// RecordWebhookDuration records asynchronous processing time of one delivery.
func (m *Metrics) RecordWebhookDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.WebhookDurationSeconds.Observe(d.Seconds())
}

// RecordDispatch records which path handled a message.
func (m *Metrics) RecordDispatch(path string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(path).Inc()
}

// RecordNLUTurn records the outcome of an NLU turn.
func (m *Metrics) RecordNLUTurn(result string) {
	if m == nil {
		return
	}
	m.NLUTurnsTotal.WithLabelValues(result).Inc()
}

// RecordNLUDuration records an engine call duration.
func (m *Metrics) RecordNLUDuration(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.NLUTurnDurationSeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordNLUFallback records a switch from one provider to another.
func (m *Metrics) RecordNLUFallback(from, to string) {
	if m == nil {
		return
	}
	m.NLUFallbackTotal.WithLabelValues(from, to).Inc()
}

// TurnStarted increments the in-flight gauge. Pair with TurnFinished.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.NLUTurnsInFlight.Inc()
}

// TurnFinished decrements the in-flight gauge.
func (m *Metrics) TurnFinished() {
	if m == nil {
		return
	}
	m.NLUTurnsInFlight.Dec()
}

// SetSessionsActive sets the active session gauge.
func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// RecordSessionsEvicted adds n evicted sessions.
func (m *Metrics) RecordSessionsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEvictedTotal.Add(float64(n))
}

// RecordSend records an outbound Graph API call.
func (m *Metrics) RecordSend(endpoint, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SendTotal.WithLabelValues(endpoint, result).Inc()
	m.SendDurationSeconds.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}
