package config

import (
	"errors"
	"fmt"
	"time"
)

// Messenger platform defaults.
const (
	DefaultGraphAPIVersion  = "v2.6"
	DefaultGraphAPIBaseURL  = "https://graph.facebook.com"
	DefaultQuickReplyPrefix = "BOOTBOT_QR_"
)

// DefaultNLUProviders is the provider order used when NLU_PROVIDERS is unset.
// Providers without an API key are skipped at engine construction.
var DefaultNLUProviders = []string{"gemini", "groq", "openai"}

// BotConfig centralizes dispatch, NLU turn and webhook tuning.
type BotConfig struct {
	// Webhook
	WebhookTimeout      time.Duration // Budget for asynchronously processing one delivery
	MaxEventsPerWebhook int           // Messaging events beyond this are dropped
	BroadcastEchoes     bool          // Dispatch is_echo messages instead of skipping them
	DedupeTTL           time.Duration
	DedupeSize          int

	// NLU turns
	NLUTimeout         time.Duration
	MaxConcurrentTurns int     // Across all users
	UserTurnsPerMinute float64 // 0 disables per-user throttling

	// Outbound
	SendTimeout      time.Duration
	SendRPS          float64
	QuickReplyPrefix string
}

// DefaultBotConfig returns default configuration values.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		WebhookTimeout:      WebhookProcessing,
		MaxEventsPerWebhook: 100,
		BroadcastEchoes:     false,
		DedupeTTL:           WebhookDedupeTTL,
		DedupeSize:          10000,

		NLUTimeout:         NLUTurn,
		MaxConcurrentTurns: 32,
		UserTurnsPerMinute: 20,

		SendTimeout:      SendRequest,
		SendRPS:          80, // Send API allows far more; stay well below page-level throttling
		QuickReplyPrefix: DefaultQuickReplyPrefix,
	}
}

// LoadBotConfig loads bot configuration from environment variables,
// falling back to DefaultBotConfig for anything unset or unparsable.
func LoadBotConfig() BotConfig {
	d := DefaultBotConfig()
	return BotConfig{
		WebhookTimeout:      getDurationEnv(EnvWebhookTimeout, d.WebhookTimeout),
		MaxEventsPerWebhook: getIntEnv(EnvMaxEventsPerWebhook, d.MaxEventsPerWebhook),
		BroadcastEchoes:     getBoolEnv(EnvBroadcastEchoes, d.BroadcastEchoes),
		DedupeTTL:           getDurationEnv(EnvDedupeTTL, d.DedupeTTL),
		DedupeSize:          getIntEnv(EnvDedupeSize, d.DedupeSize),

		NLUTimeout:         getDurationEnv(EnvNLUTimeout, d.NLUTimeout),
		MaxConcurrentTurns: getIntEnv(EnvNLUMaxConcurrent, d.MaxConcurrentTurns),
		UserTurnsPerMinute: getFloatEnv(EnvNLUUserRPM, d.UserTurnsPerMinute),

		SendTimeout:      getDurationEnv(EnvSendTimeout, d.SendTimeout),
		SendRPS:          getFloatEnv(EnvSendRPS, d.SendRPS),
		QuickReplyPrefix: getEnv(EnvQuickReplyPrefix, d.QuickReplyPrefix),
	}
}

// Validate checks if the configuration is valid.
func (c BotConfig) Validate() error {
	var errs []error

	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("webhook timeout must be positive, got %v", c.WebhookTimeout))
	}
	if c.MaxEventsPerWebhook < 1 {
		errs = append(errs, fmt.Errorf("max events per webhook must be positive, got %d", c.MaxEventsPerWebhook))
	}
	if c.DedupeTTL <= 0 || c.DedupeSize < 1 {
		errs = append(errs, fmt.Errorf("dedupe ttl and size must be positive, got %v and %d", c.DedupeTTL, c.DedupeSize))
	}
	if c.NLUTimeout <= 0 {
		errs = append(errs, fmt.Errorf("nlu timeout must be positive, got %v", c.NLUTimeout))
	}
	if c.NLUTimeout >= c.WebhookTimeout {
		errs = append(errs, fmt.Errorf("nlu timeout (%v) must be shorter than webhook timeout (%v)", c.NLUTimeout, c.WebhookTimeout))
	}
	if c.MaxConcurrentTurns < 1 {
		errs = append(errs, fmt.Errorf("max concurrent turns must be positive, got %d", c.MaxConcurrentTurns))
	}
	if c.UserTurnsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("user turns per minute cannot be negative, got %f", c.UserTurnsPerMinute))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("send timeout must be positive, got %v", c.SendTimeout))
	}
	if c.SendRPS <= 0 {
		errs = append(errs, fmt.Errorf("send RPS must be positive, got %f", c.SendRPS))
	}
	if c.QuickReplyPrefix == "" {
		errs = append(errs, errors.New("quick reply prefix cannot be empty"))
	}

	return errors.Join(errs...)
}
