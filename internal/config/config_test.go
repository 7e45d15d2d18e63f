package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPageAccessToken, "page_token")
	t.Setenv(EnvVerifyToken, "verify_token")
	t.Setenv(EnvAppSecret, "app_secret")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "page_token", cfg.PageAccessToken)
	assert.Equal(t, "verify_token", cfg.VerifyToken)
	assert.Equal(t, "app_secret", cfg.AppSecret)

	// Defaults
	assert.Equal(t, "10000", cfg.Port)
	assert.Equal(t, DefaultGraphAPIVersion, cfg.GraphAPIVersion)
	assert.Equal(t, SessionBackendMemory, cfg.SessionBackend)
	assert.Equal(t, SessionIdleTTL, cfg.SessionIdleTTL)
	assert.Equal(t, DefaultNLUProviders, cfg.NLU.Providers)
	assert.Equal(t, NLUTurn, cfg.Bot.NLUTimeout)
	assert.False(t, cfg.Bot.BroadcastEchoes)
	assert.Equal(t, DefaultQuickReplyPrefix, cfg.Bot.QuickReplyPrefix)
	assert.False(t, cfg.NLU.HasProvider())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvSessionBackend, "SQLite")
	t.Setenv(EnvSQLitePath, "/tmp/sessions.db")
	t.Setenv(EnvSessionIdleTTL, "5m")
	t.Setenv(EnvNLUProviders, "Groq, gemini ,")
	t.Setenv(EnvGroqAPIKey, "gsk_test")
	t.Setenv(EnvBroadcastEchoes, "true")
	t.Setenv(EnvWhitelistedDomains, "https://example.com, https://shop.example.com")
	t.Setenv(EnvNLUTimeout, "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SessionBackendSQLite, cfg.SessionBackend)
	assert.Equal(t, "/tmp/sessions.db", cfg.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, []string{"groq", "gemini"}, cfg.NLU.Providers)
	assert.True(t, cfg.NLU.HasProvider())
	assert.True(t, cfg.Bot.BroadcastEchoes)
	assert.Equal(t, []string{"https://example.com", "https://shop.example.com"}, cfg.WhitelistedDomains)
	assert.Equal(t, NLUTurn, cfg.Bot.NLUTimeout, "unparsable duration falls back to default")
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv(EnvPageAccessToken, "")
	t.Setenv(EnvVerifyToken, "")
	t.Setenv(EnvAppSecret, "")

	_, err := Load()
	require.Error(t, err)

	for _, key := range []string{EnvPageAccessToken, EnvVerifyToken, EnvAppSecret} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PageAccessToken:        "t",
			VerifyToken:            "v",
			AppSecret:              "s",
			Port:                   "10000",
			ShutdownTimeout:        time.Second,
			SessionBackend:         SessionBackendMemory,
			SessionIdleTTL:         time.Minute,
			SessionCleanupInterval: time.Second,
			NLU:                    NLUConfig{Providers: []string{"gemini"}, MaxAttempts: 1},
			Bot:                    DefaultBotConfig(),
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.SessionBackend = "redis" }, EnvSessionBackend},
		{"sqlite without path", func(c *Config) { c.SessionBackend = SessionBackendSQLite }, EnvSQLitePath},
		{"negative idle ttl", func(c *Config) { c.SessionIdleTTL = -time.Second }, EnvSessionIdleTTL},
		{"eviction without interval", func(c *Config) { c.SessionCleanupInterval = 0 }, EnvSessionCleanupInterval},
		{"unknown provider", func(c *Config) { c.NLU.Providers = []string{"wit"} }, "wit"},
		{"openai without model", func(c *Config) { c.NLU.OpenAIAPIKey = "sk" }, EnvOpenAIModel},
		{"sentry without host", func(c *Config) { c.SentryToken = "tok" }, EnvSentryHost},
		{"bot config", func(c *Config) { c.Bot.SendRPS = 0 }, "send RPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errContains), "error %q should mention %q", err, tt.errContains)
		})
	}
}
