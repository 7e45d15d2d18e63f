// Package config provides application configuration management.
// It loads settings from environment variables (optionally via a .env file)
// and provides defaults for the server, session store, NLU engines and webhook.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Messenger Configuration
	PageAccessToken    string
	VerifyToken        string
	AppSecret          string
	GraphAPIVersion    string
	GraphAPIBaseURL    string
	WhitelistedDomains []string

	// Server Configuration
	Port            string
	ServerName      string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Optional rotating log file, written alongside stdout
	LogFile        string
	LogFileMaxMB   int
	LogFileBackups int

	// Session Configuration
	SessionBackend         string        // "memory" or "sqlite"
	SQLitePath             string        // Used when SessionBackend is "sqlite"
	SessionIdleTTL         time.Duration // 0 disables idle eviction
	SessionCleanupInterval time.Duration
	SessionTombstoneTTL    time.Duration // How long a deleted id keeps reporting "deleted"

	// NLU Configuration
	NLU NLUConfig

	// Observability
	BetterStackToken    string
	BetterStackEndpoint string
	SentryToken         string
	SentryHost          string
	SentryEnvironment   string
	SentrySampleRate    float64
	MetricsUsername     string // Username for /metrics Basic Auth (default: "prometheus")
	MetricsPassword     string // Password for /metrics Basic Auth (empty = no auth)

	// Bot Configuration (embedded)
	Bot BotConfig
}

// NLUConfig holds NLU provider settings. Providers are tried in order.
type NLUConfig struct {
	Providers []string // e.g. ["gemini", "groq"]

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GroqAPIKey string
	GroqModel  string

	MaxAttempts int
}

// HasProvider returns true if at least one NLU provider has an API key.
func (c NLUConfig) HasProvider() bool {
	return c.GeminiAPIKey != "" || c.OpenAIAPIKey != "" || c.GroqAPIKey != ""
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		PageAccessToken:    getEnv(EnvPageAccessToken, ""),
		VerifyToken:        getEnv(EnvVerifyToken, ""),
		AppSecret:          getEnv(EnvAppSecret, ""),
		GraphAPIVersion:    getEnv(EnvGraphAPIVersion, DefaultGraphAPIVersion),
		GraphAPIBaseURL:    getEnv(EnvGraphAPIBaseURL, DefaultGraphAPIBaseURL),
		WhitelistedDomains: getListEnv(EnvWhitelistedDomains),

		Port:            getEnv(EnvPort, "10000"),
		ServerName:      getEnv(EnvServerName, ""),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		LogFile:         getEnv(EnvLogFile, ""),
		LogFileMaxMB:    getIntEnv(EnvLogFileMaxMB, 50),
		LogFileBackups:  getIntEnv(EnvLogFileBackups, 3),

		SessionBackend:         strings.ToLower(getEnv(EnvSessionBackend, SessionBackendMemory)),
		SQLitePath:             getEnv(EnvSQLitePath, "data/sessions.db"),
		SessionIdleTTL:         getDurationEnv(EnvSessionIdleTTL, SessionIdleTTL),
		SessionCleanupInterval: getDurationEnv(EnvSessionCleanupInterval, SessionCleanupInterval),
		SessionTombstoneTTL:    getDurationEnv(EnvSessionTombstoneTTL, SessionTombstoneTTL),

		NLU: NLUConfig{
			Providers:     getListEnv(EnvNLUProviders),
			GeminiAPIKey:  getEnv(EnvGeminiAPIKey, ""),
			GeminiModel:   getEnv(EnvGeminiModel, ""),
			OpenAIAPIKey:  getEnv(EnvOpenAIAPIKey, ""),
			OpenAIBaseURL: getEnv(EnvOpenAIBaseURL, ""),
			OpenAIModel:   getEnv(EnvOpenAIModel, ""),
			GroqAPIKey:    getEnv(EnvGroqAPIKey, ""),
			GroqModel:     getEnv(EnvGroqModel, ""),
			MaxAttempts:   getIntEnv(EnvNLUMaxAttempts, 2),
		},

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
		SentryToken:         getEnv(EnvSentryToken, ""),
		SentryHost:          getEnv(EnvSentryHost, ""),
		SentryEnvironment:   getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:    getFloatEnv(EnvSentrySampleRate, 1.0),
		MetricsUsername:     getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:     getEnv(EnvMetricsPassword, ""),

		Bot: LoadBotConfig(),
	}

	if len(cfg.NLU.Providers) == 0 {
		cfg.NLU.Providers = slices.Clone(DefaultNLUProviders)
	}
	for i, p := range cfg.NLU.Providers {
		cfg.NLU.Providers[i] = strings.ToLower(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.PageAccessToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPageAccessToken))
	}
	if c.VerifyToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvVerifyToken))
	}
	if c.AppSecret == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvAppSecret))
	}
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvShutdownTimeout, c.ShutdownTimeout))
	}

	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=sqlite", EnvSQLitePath, EnvSessionBackend))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q",
			EnvSessionBackend, SessionBackendMemory, SessionBackendSQLite, c.SessionBackend))
	}
	if c.SessionIdleTTL < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvSessionIdleTTL, c.SessionIdleTTL))
	}
	if c.SessionIdleTTL > 0 && c.SessionCleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive when idle eviction is enabled", EnvSessionCleanupInterval))
	}

	for _, p := range c.NLU.Providers {
		if !isKnownProvider(p) {
			errs = append(errs, fmt.Errorf("%s contains unknown provider %q", EnvNLUProviders, p))
		}
	}
	if c.NLU.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvNLUMaxAttempts, c.NLU.MaxAttempts))
	}
	if c.NLU.OpenAIAPIKey != "" && c.NLU.OpenAIModel == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is set", EnvOpenAIModel, EnvOpenAIAPIKey))
	}

	if c.SentryToken != "" && c.SentryHost == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is set", EnvSentryHost, EnvSentryToken))
	}

	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func isKnownProvider(p string) bool {
	switch p {
	case "gemini", "openai", "groq":
		return true
	default:
		return false
	}
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated environment variable, dropping blanks.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
