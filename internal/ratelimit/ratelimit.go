// Package ratelimit provides token bucket rate limiters for outbound Graph API
// sends (a single global bucket) and inbound NLU turns (one bucket per user).
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoRefill is returned by Wait when the bucket is empty and never refills.
var ErrNoRefill = errors.New("ratelimit: bucket empty with zero refill rate")

// Limiter is a token bucket holding up to capacity tokens and gaining rate
// tokens per second. Each request takes one token. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	level    float64
	stamp    time.Time
	now      func() time.Time
}

// New creates a full limiter with burst capacity and a refill rate in tokens per second.
//
//	sends := ratelimit.New(80, 80) // 80 Graph API calls per second, burst 80
func New(capacity, rate float64) *Limiter {
	return newWithClock(capacity, rate, time.Now)
}

func newWithClock(capacity, rate float64, now func() time.Time) *Limiter {
	return &Limiter{
		capacity: capacity,
		rate:     rate,
		level:    capacity,
		stamp:    now(),
		now:      now,
	}
}

// advance credits tokens accrued since the last call. mu must be held.
func (l *Limiter) advance() {
	t := l.now()
	if elapsed := t.Sub(l.stamp); elapsed > 0 {
		l.level = min(l.capacity, l.level+elapsed.Seconds()*l.rate)
	}
	l.stamp = t
}

// take consumes a token if available, otherwise reports how long until one is.
// mu must be held.
func (l *Limiter) take() (bool, time.Duration) {
	l.advance()
	if l.level >= 1 {
		l.level--
		return true, 0
	}
	if l.rate <= 0 {
		return false, -1
	}
	return false, time.Duration((1 - l.level) / l.rate * float64(time.Second))
}

// Allow consumes a token if one is available. It never blocks.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok, _ := l.take()
	return ok
}

// Wait blocks until a token is taken or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		ok, delay := l.take()
		l.mu.Unlock()
		switch {
		case ok:
			return nil
		case delay < 0:
			return ErrNoRefill
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current number of tokens.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance()
	return l.level
}

// IsFull reports whether the bucket is at capacity. A full bucket carries no
// state, which is how KeyedLimiter finds keys it can forget.
func (l *Limiter) IsFull() bool {
	return l.Available() >= l.capacity
}
