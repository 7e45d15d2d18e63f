// Package nlu runs conversational turns against hosted LLMs.
//
// An Engine takes the user's text plus the session context and returns the
// next context. The model never talks to the user directly: it answers with
// tool calls (send, set_context, clear_context, finish) that the engine
// applies in order, calling back into Actions for anything user-visible.
//
// Architecture:
//   - Gemini: google.golang.org/genai (official SDK)
//   - Groq / OpenAI: github.com/openai/openai-go/v3 (OpenAI-compatible API)
//
// Fallback strategy:
//  1. Same provider retried with full-jitter backoff
//  2. Next provider in NLU_PROVIDERS order
//  3. Turn fails and the session is left untouched
package nlu

import (
	"context"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	// ProviderGemini uses Google's Gemini API (non-OpenAI-compatible).
	ProviderGemini Provider = "gemini"
	// ProviderGroq uses Groq's OpenAI-compatible API.
	ProviderGroq Provider = "groq"
	// ProviderOpenAI uses any OpenAI-compatible endpoint (custom base URL).
	ProviderOpenAI Provider = "openai"
)

// ProviderEndpoint holds base URLs for OpenAI-compatible providers with a fixed endpoint.
var ProviderEndpoint = map[Provider]string{
	ProviderGroq: "https://api.groq.com/openai/v1/",
}

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Engine runs one conversational turn.
// The returned context replaces the session context wholesale.
type Engine interface {
	RunActions(ctx context.Context, sessionID, text string, c Context) (Context, error)
	Close() error
}

// Actions is the bridge from the engine back to the messaging platform.
type Actions interface {
	// Send delivers text to whoever owns sessionID.
	Send(ctx context.Context, sessionID, text string) error
}

// ActionsFunc adapts a function to Actions.
type ActionsFunc func(ctx context.Context, sessionID, text string) error

// Send calls f.
func (f ActionsFunc) Send(ctx context.Context, sessionID, text string) error {
	return f(ctx, sessionID, text)
}

// Request is what a Planner sees for one turn.
type Request struct {
	SessionID string
	Text      string
	Context   Context
}

// ToolCall is one function call returned by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Planner asks a model which tool calls to make for a request.
// Planners must not have side effects; retries call them more than once.
type Planner interface {
	Plan(ctx context.Context, req Request) ([]ToolCall, error)
	Provider() Provider
	Model() string
	Close() error
}

// RetryConfig defines retry behavior for LLM API calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialDelay is the base delay before first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// Default models per provider.
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// Config holds everything NewEngine needs to build the provider chain.
type Config struct {
	// Providers is the ordered list of providers to try.
	// Providers without an API key are skipped.
	Providers []Provider

	GeminiAPIKey string
	GeminiModel  string

	GroqAPIKey string
	GroqModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	Retry RetryConfig
}

// HasProvider returns true if the specified provider is configured with an API key.
func (c *Config) HasProvider(p Provider) bool {
	switch p {
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	case ProviderGroq:
		return c.GroqAPIKey != ""
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	default:
		return false
	}
}

// ConfiguredProviders returns providers with API keys, in configured order, without duplicates.
func (c *Config) ConfiguredProviders() []Provider {
	seen := make(map[Provider]bool, len(c.Providers))
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p] || !c.HasProvider(p) {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}
