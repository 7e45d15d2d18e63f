package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}

	// Registering twice on the same registry must fail, proving registration happened.
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	New(registry)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordWebhookRequest("ok")
	m.RecordWebhookRequest("ok")
	m.RecordWebhookRequest("invalid_signature")
	m.RecordWebhookEvent("message")
	m.RecordDispatch("matcher")
	m.RecordDispatch("nlu")
	m.RecordNLUTurn("done")
	m.RecordNLUFallback("gemini", "groq")
	m.RecordRateLimiterDrop("nlu_user")
	m.RecordSend("messages", "error", 50*time.Millisecond)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"webhook ok", testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("ok")), 2},
		{"webhook invalid", testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("invalid_signature")), 1},
		{"event message", testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("message")), 1},
		{"dispatch matcher", testutil.ToFloat64(m.DispatchTotal.WithLabelValues("matcher")), 1},
		{"dispatch nlu", testutil.ToFloat64(m.DispatchTotal.WithLabelValues("nlu")), 1},
		{"turn done", testutil.ToFloat64(m.NLUTurnsTotal.WithLabelValues("done")), 1},
		{"fallback", testutil.ToFloat64(m.NLUFallbackTotal.WithLabelValues("gemini", "groq")), 1},
		{"limiter", testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("nlu_user")), 1},
		{"send error", testutil.ToFloat64(m.SendTotal.WithLabelValues("messages", "error")), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetSessionsActive(7)
	if got := testutil.ToFloat64(m.SessionsActive); got != 7 {
		t.Errorf("SessionsActive = %v, want 7", got)
	}

	m.TurnStarted()
	m.TurnStarted()
	m.TurnFinished()
	if got := testutil.ToFloat64(m.NLUTurnsInFlight); got != 1 {
		t.Errorf("NLUTurnsInFlight = %v, want 1", got)
	}

	m.RecordSessionsEvicted(3)
	m.RecordSessionsEvicted(0)
	if got := testutil.ToFloat64(m.SessionsEvictedTotal); got != 3 {
		t.Errorf("SessionsEvictedTotal = %v, want 3", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	// None of these may panic.
	m.RecordWebhookRequest("ok")
	m.RecordWebhookEvent("message")
	m.RecordWebhookDuration(time.Second)
	m.RecordDispatch("nlu")
	m.RecordNLUTurn("success")
	m.RecordNLUDuration("gemini", time.Second)
	m.RecordNLUFallback("a", "b")
	m.TurnStarted()
	m.TurnFinished()
	m.SetSessionsActive(1)
	m.RecordSessionsEvicted(1)
	m.RecordSend("messages", "success", time.Second)
	m.RecordRateLimiterDrop("send")
}
