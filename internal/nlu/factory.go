package nlu

import (
	"context"
	"log/slog"
)

// NewEngine builds an ActionEngine over every configured provider, in order.
// It returns nil when no provider has credentials; callers treat that as NLU disabled.
func NewEngine(ctx context.Context, cfg Config, actions Actions, metrics MetricsRecorder) *ActionEngine {
	planners := make([]Planner, 0, len(cfg.Providers))

	for _, provider := range cfg.ConfiguredProviders() {
		var (
			p   Planner
			err error
		)
		switch provider {
		case ProviderGemini:
			p, err = newGeminiPlanner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		case ProviderGroq:
			p, err = newOpenAIPlanner(ProviderGroq, cfg.GroqAPIKey, cfg.GroqModel, "")
		case ProviderOpenAI:
			p, err = newOpenAIPlanner(ProviderOpenAI, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		default:
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "failed to create nlu planner", "provider", provider, "error", err)
			continue
		}
		planners = append(planners, p)
	}

	if len(planners) == 0 {
		slog.InfoContext(ctx, "no NLU provider configured; unmatched messages will be ignored")
		return nil
	}

	slog.InfoContext(ctx, "nlu engine configured",
		"primary", planners[0].Provider(),
		"model", planners[0].Model(),
		"chainSize", len(planners))

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = DefaultMaxRetryAttempts
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = DefaultInitialRetryDelay
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = DefaultMaxRetryDelay
	}

	return NewActionEngine(NewFallbackPlanner(retry, metrics, planners...), actions)
}
