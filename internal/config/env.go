package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Core (Required)
	EnvPageAccessToken = "MESSENGER_ACCESS_TOKEN"
	EnvVerifyToken     = "MESSENGER_VERIFY_TOKEN"
	EnvAppSecret       = "MESSENGER_APP_SECRET"

	// Messenger
	EnvGraphAPIVersion    = "GRAPH_API_VERSION"
	EnvGraphAPIBaseURL    = "GRAPH_API_BASE_URL"
	EnvBroadcastEchoes    = "BROADCAST_ECHOES"
	EnvWhitelistedDomains = "WHITELISTED_DOMAINS"
	EnvQuickReplyPrefix   = "QUICK_REPLY_PREFIX"

	// Server
	EnvPort            = "PORT"
	EnvServerName      = "SERVER_NAME"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvLogFile         = "LOG_FILE"
	EnvLogFileMaxMB    = "LOG_FILE_MAX_MB"
	EnvLogFileBackups  = "LOG_FILE_BACKUPS"

	// Webhook
	EnvWebhookTimeout      = "WEBHOOK_TIMEOUT"
	EnvMaxEventsPerWebhook = "MAX_EVENTS_PER_WEBHOOK"
	EnvDedupeTTL           = "WEBHOOK_DEDUPE_TTL"
	EnvDedupeSize          = "WEBHOOK_DEDUPE_SIZE"

	// Sessions
	EnvSessionBackend         = "SESSION_BACKEND"
	EnvSQLitePath             = "SQLITE_PATH"
	EnvSessionIdleTTL         = "SESSION_IDLE_TTL"
	EnvSessionCleanupInterval = "SESSION_CLEANUP_INTERVAL"
	EnvSessionTombstoneTTL    = "SESSION_TOMBSTONE_TTL"

	// NLU
	EnvNLUProviders     = "NLU_PROVIDERS"
	EnvNLUTimeout       = "NLU_TIMEOUT"
	EnvNLUMaxConcurrent = "NLU_MAX_CONCURRENT"
	EnvNLUUserRPM       = "NLU_USER_RPM"
	EnvNLUMaxAttempts   = "NLU_MAX_ATTEMPTS"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvGeminiModel      = "GEMINI_MODEL"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvOpenAIModel      = "OPENAI_MODEL"
	EnvGroqAPIKey       = "GROQ_API_KEY"
	EnvGroqModel        = "GROQ_MODEL"

	// Outbound
	EnvSendTimeout = "SEND_TIMEOUT"
	EnvSendRPS     = "SEND_RPS"

	// Sentry Feature
	EnvSentryToken       = "SENTRY_TOKEN"
	EnvSentryHost        = "SENTRY_HOST"
	EnvSentryEnvironment = "SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "BETTERSTACK_SOURCE_TOKEN"
	EnvBetterStackEndpoint = "BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"
)
