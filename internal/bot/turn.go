package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/garyellow/messenger-nlu-bot/internal/config"
	"github.com/garyellow/messenger-nlu-bot/internal/ctxutil"
	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
	"github.com/garyellow/messenger-nlu-bot/internal/logger"
	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
	"github.com/garyellow/messenger-nlu-bot/internal/ratelimit"
	"github.com/garyellow/messenger-nlu-bot/internal/sentry"
	"github.com/garyellow/messenger-nlu-bot/internal/session"
)

// Turn results recorded in metrics.
const (
	TurnSuccess     = "success"
	TurnDone        = "done"
	TurnError       = "error"
	TurnTimeout     = "timeout"
	TurnRateLimited = "rate_limited"
	TurnDisabled    = "disabled"
)

// TurnRecorder receives turn outcomes. *metrics.Metrics implements it.
type TurnRecorder interface {
	RecordNLUTurn(result string)
	TurnStarted()
	TurnFinished()
	ratelimit.DropRecorder
}

// TurnConfig configures a TurnDriver. Store and Logger are required.
// A nil Engine disables NLU: turns are logged and skipped.
type TurnConfig struct {
	Store   session.Store
	Engine  nlu.Engine
	Logger  *logger.Logger
	Metrics TurnRecorder

	Timeout            time.Duration
	MaxConcurrent      int
	UserTurnsPerMinute float64 // 0 disables per-user throttling
}

// TurnDriver runs NLU turns against the session store.
//
// Turns for one user never overlap, and asynchronous turns for one user run
// in the order they were submitted. A failed turn leaves the session as it was.
type TurnDriver struct {
	store   session.Store
	engine  nlu.Engine
	logger  *logger.Logger
	metrics TurnRecorder
	timeout time.Duration

	sem         *semaphore.Weighted
	locks       *keyedMutex
	userLimiter *ratelimit.KeyedLimiter

	mu      sync.Mutex
	queues  map[string][]turnJob
	closed  bool
	wg      sync.WaitGroup
	stopped sync.Once
}

type turnJob struct {
	ctx    context.Context
	userID string
	text   string
}

// NewTurnDriver creates a TurnDriver. Call Shutdown to drain pending turns.
func NewTurnDriver(cfg TurnConfig) *TurnDriver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.NLUTurn
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	d := &TurnDriver{
		store:   cfg.Store,
		engine:  cfg.Engine,
		logger:  cfg.Logger.WithModule("turn"),
		metrics: cfg.Metrics,
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		locks:   newKeyedMutex(),
		queues:  make(map[string][]turnJob),
	}

	if cfg.UserTurnsPerMinute > 0 {
		var drops ratelimit.DropRecorder
		if cfg.Metrics != nil {
			drops = cfg.Metrics
		}
		// Burst allows one short exchange before throttling kicks in.
		burst := max(cfg.UserTurnsPerMinute/4, 1)
		d.userLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
			Name:          "nlu_user",
			Burst:         burst,
			RefillRate:    cfg.UserTurnsPerMinute / 60,
			CleanupPeriod: config.RateLimiterCleanupInterval,
			Metrics:       drops,
		})
	}
	return d
}

// Enabled reports whether an engine is configured.
func (d *TurnDriver) Enabled() bool {
	return d.engine != nil
}

// RunTurn runs one NLU turn for userID and blocks until it completes.
//
// The session is created if needed, the engine runs with its context under
// the turn timeout, and the returned context replaces the stored one. A
// truthy done deletes the session instead. On any failure the stored
// context is left untouched.
func (d *TurnDriver) RunTurn(ctx context.Context, userID, text string) error {
	ctx = ctxutil.WithUserID(ctx, userID)

	if d.engine == nil {
		d.record(TurnDisabled)
		d.logger.DebugContext(ctx, "NLU disabled, message ignored")
		return domainerrors.ErrEngineUnavailable
	}
	if d.userLimiter != nil && !d.userLimiter.Allow(userID) {
		d.record(TurnRateLimited)
		d.logger.WarnContext(ctx, "NLU turn dropped by per-user rate limit")
		return fmt.Errorf("nlu turn for %s: %w", userID, domainerrors.ErrRateLimitExceeded)
	}

	unlock := d.locks.Lock(userID)
	defer unlock()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return d.fail(ctx, TurnTimeout, fmt.Errorf("%w: waiting for turn slot: %w", domainerrors.ErrTimeout, err))
	}
	defer d.sem.Release(1)

	if d.metrics != nil {
		d.metrics.TurnStarted()
		defer d.metrics.TurnFinished()
	}

	sessionID, err := d.store.FindOrCreate(ctx, userID)
	if err != nil {
		return d.fail(ctx, TurnError, fmt.Errorf("find or create session: %w", err))
	}
	ctx = ctxutil.WithSessionID(ctx, sessionID)

	sess, err := d.store.Get(ctx, sessionID)
	if err != nil {
		return d.fail(ctx, TurnError, fmt.Errorf("load session: %w", err))
	}

	start := time.Now()
	turnCtx, cancel := context.WithTimeout(ctx, d.timeout)
	next, err := d.engine.RunActions(turnCtx, sessionID, text, sess.Context)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return d.fail(ctx, TurnTimeout, fmt.Errorf("%w: nlu turn after %v: %w", domainerrors.ErrTimeout, d.timeout, err))
		}
		return d.fail(ctx, TurnError, fmt.Errorf("nlu turn: %w", err))
	}

	log := d.logger.WithField("duration_ms", time.Since(start).Milliseconds())
	if next.Done() {
		if err := d.store.Delete(ctx, sessionID); err != nil {
			return d.fail(ctx, TurnError, fmt.Errorf("delete finished session: %w", err))
		}
		d.record(TurnDone)
		log.InfoContext(ctx, "Conversation finished, session deleted")
		return nil
	}

	if err := d.store.Update(ctx, sessionID, next); err != nil {
		return d.fail(ctx, TurnError, fmt.Errorf("save session context: %w", err))
	}
	d.record(TurnSuccess)
	log.DebugContext(ctx, "Waiting for next user message")
	return nil
}

// RunTurnAsync queues a turn and returns immediately. The turn runs on a
// detached context that keeps ctx's tracing ids.
func (d *TurnDriver) RunTurnAsync(ctx context.Context, userID, text string) {
	job := turnJob{ctx: ctxutil.PreserveTracing(ctx), userID: userID, text: text}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.WarnContext(ctx, "Turn driver shutting down, message dropped")
		return
	}
	// A present key means a worker is already draining this user's queue.
	q, running := d.queues[userID]
	d.queues[userID] = append(q, job)
	if !running {
		d.wg.Go(func() { d.drain(userID) })
	}
}

func (d *TurnDriver) drain(userID string) {
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		job := q[0]
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.runJob(job)
	}
}

func (d *TurnDriver) runJob(job turnJob) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(job.ctx, "Panic in NLU turn", "panic", r)
			sentry.CapturePanic(job.ctx, r, map[string]string{"component": "nlu_turn"})
		}
	}()
	// Errors are logged and reported inside RunTurn.
	_ = d.RunTurn(job.ctx, job.userID, job.text)
}

// Shutdown stops accepting turns and waits for queued ones to finish or ctx to end.
func (d *TurnDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for nlu turns: %w", ctx.Err())
	}

	d.stopped.Do(func() {
		if d.userLimiter != nil {
			d.userLimiter.Stop()
		}
	})
	return err
}

// Wait blocks until every queued turn has finished. Intended for tests.
func (d *TurnDriver) Wait() {
	d.wg.Wait()
}

func (d *TurnDriver) fail(ctx context.Context, result string, err error) error {
	d.record(result)
	d.logger.WithError(err).ErrorContext(ctx, "Oops! NLU turn failed, session left unchanged")
	sentry.CaptureError(ctx, err, map[string]string{"component": "nlu_turn", "result": result})
	return err
}

func (d *TurnDriver) record(result string) {
	if d.metrics != nil {
		d.metrics.RecordNLUTurn(result)
	}
}
