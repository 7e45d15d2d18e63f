package config

import "time"

// Webhook timeouts
//
// Messenger expects a 200 within 20 seconds of delivery and retries otherwise,
// so the handler acknowledges immediately and processes events afterwards
// under WebhookProcessing.
const (
	// WebhookProcessing bounds the asynchronous handling of one delivery,
	// including every NLU turn it triggers.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout.
	// Payloads are small JSON documents.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second

	// WebhookDedupeTTL is how long a message id is remembered to drop redeliveries.
	WebhookDedupeTTL = 10 * time.Minute
)

// NLU timeouts
const (
	// NLUTurn bounds a single RunActions call including retries and provider fallback.
	// A timed out turn leaves the session untouched.
	NLUTurn = 30 * time.Second
)

// Outbound timeouts
const (
	// SendRequest bounds a single Graph API call.
	SendRequest = 10 * time.Second
)

// Session lifecycle
const (
	// SessionIdleTTL evicts sessions whose engine never marked them done.
	SessionIdleTTL = 30 * time.Minute

	// SessionCleanupInterval is how often the janitor sweeps idle sessions.
	SessionCleanupInterval = time.Minute

	// SessionTombstoneTTL is how long a deleted id keeps reporting ErrSessionDeleted.
	SessionTombstoneTTL = time.Hour
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Probe timeouts
const (
	// ReadinessCheckTimeout bounds the session store check behind /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Background job intervals
const (
	// RateLimiterCleanupInterval is how often inactive per-user limiters are removed.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the default timeout for graceful server shutdown.
	// Allows in-flight webhook processing and NLU turns to complete.
	GracefulShutdown = 30 * time.Second
)
