package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GaugeRecorder receives session counts after each sweep.
type GaugeRecorder interface {
	SetSessionsActive(n int)
	RecordSessionsEvicted(n int)
}

// Janitor periodically evicts sessions that idled past the TTL.
// Without it a conversation whose engine never sets done stays forever.
type Janitor struct {
	store    Evictor
	ttl      time.Duration
	interval time.Duration
	metrics  GaugeRecorder
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewJanitor creates a janitor. metrics may be nil.
func NewJanitor(store Evictor, ttl, interval time.Duration, metrics GaugeRecorder) *Janitor {
	return &Janitor{
		store:    store,
		ttl:      ttl,
		interval: interval,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Start begins the periodic sweep. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running || j.ttl <= 0 || j.interval <= 0 {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	go j.run(sweepCtx)
}

// Stop cancels the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel := j.cancel
	done := j.done
	j.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the sweep loop is active.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) run(ctx context.Context) {
	defer func() {
		j.mu.Lock()
		j.running = false
		close(j.done)
		j.mu.Unlock()
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.DebugContext(ctx, "session janitor stopping")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs a single eviction pass and returns how many sessions were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	start := time.Now()
	removed, err := j.store.Evict(ctx, j.now().Add(-j.ttl))
	if err != nil {
		slog.WarnContext(ctx, "session eviction failed", "error", err)
		return 0
	}

	if removed > 0 {
		slog.InfoContext(ctx, "evicted idle sessions",
			"removed", removed,
			"idle_ttl", j.ttl,
			"duration", time.Since(start))
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsEvicted(removed)
		if n, err := j.store.Count(ctx); err == nil {
			j.metrics.SetSessionsActive(n)
		}
	}
	return removed
}
