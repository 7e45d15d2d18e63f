package nlu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MetricsRecorder receives per-provider latency and fallback transitions.
type MetricsRecorder interface {
	RecordNLUDuration(provider string, d time.Duration)
	RecordNLUFallback(from, to string)
}

// FallbackPlanner tries a chain of planners in order.
// Each planner is retried with backoff on transient errors before
// moving to the next one. Permanent errors stop the chain.
type FallbackPlanner struct {
	planners    []Planner
	retryConfig RetryConfig
	metrics     MetricsRecorder
}

// NewFallbackPlanner creates a fallback chain. metrics may be nil.
func NewFallbackPlanner(cfg RetryConfig, metrics MetricsRecorder, planners ...Planner) *FallbackPlanner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &FallbackPlanner{
		planners:    planners,
		retryConfig: cfg,
		metrics:     metrics,
	}
}

// Plan walks the chain until a planner succeeds.
func (f *FallbackPlanner) Plan(ctx context.Context, req Request) ([]ToolCall, error) {
	if f == nil || len(f.planners) == 0 {
		return nil, errors.New("no nlu planner configured")
	}

	var lastErr error
	for i, p := range f.planners {
		start := time.Now()
		calls, err := f.planWithRetry(ctx, p, req)
		if f.metrics != nil {
			f.metrics.RecordNLUDuration(p.Provider().String(), time.Since(start))
		}
		if err == nil {
			if i > 0 && f.metrics != nil {
				f.metrics.RecordNLUFallback(f.planners[0].Provider().String(), p.Provider().String())
			}
			return calls, nil
		}
		lastErr = err

		action := ClassifyError(err)
		slog.WarnContext(ctx, "nlu planner failed",
			"provider", p.Provider(),
			"model", p.Model(),
			"action", action,
			"duration", time.Since(start),
			"error", err)

		if action == ActionFail || ctx.Err() != nil {
			break
		}
		if i+1 < len(f.planners) {
			slog.InfoContext(ctx, "falling back to next nlu provider",
				"from", p.Provider(),
				"to", f.planners[i+1].Provider())
		}
	}

	if len(f.planners) > 1 {
		return nil, fmt.Errorf("all nlu providers failed: %w", lastErr)
	}
	return nil, lastErr
}

func (f *FallbackPlanner) planWithRetry(ctx context.Context, p Planner, req Request) ([]ToolCall, error) {
	var lastErr error

	for attempt := range f.retryConfig.MaxAttempts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		calls, err := p.Plan(ctx, req)
		if err == nil {
			return calls, nil
		}
		lastErr = err

		if ClassifyError(err) != ActionRetry {
			return nil, err
		}
		if attempt == f.retryConfig.MaxAttempts-1 {
			break
		}

		backoff := CalculateBackoff(attempt+1, f.retryConfig.InitialDelay, f.retryConfig.MaxDelay)
		if !HasSufficientBudget(ctx, backoff) {
			return nil, fmt.Errorf("timeout during retry: %w", lastErr)
		}

		slog.DebugContext(ctx, "retrying nlu plan",
			"provider", p.Provider(),
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err)

		if err := Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// Provider returns the primary provider.
func (f *FallbackPlanner) Provider() Provider {
	if f == nil || len(f.planners) == 0 {
		return ""
	}
	return f.planners[0].Provider()
}

// Model returns the primary model.
func (f *FallbackPlanner) Model() string {
	if f == nil || len(f.planners) == 0 {
		return ""
	}
	return f.planners[0].Model()
}

// Close closes every planner in the chain.
func (f *FallbackPlanner) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.planners {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
