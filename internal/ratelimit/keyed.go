package ratelimit

import (
	"maps"
	"sync"
	"time"
)

// DropRecorder is notified whenever a keyed limiter rejects a request.
type DropRecorder interface {
	RecordRateLimiterDrop(limiterType string)
}

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter in metrics (e.g., "nlu_user")
	Name string

	Burst      float64 // Maximum tokens (burst capacity)
	RefillRate float64 // Tokens refilled per second

	// CleanupPeriod controls how often idle keys are dropped. Zero disables cleanup.
	CleanupPeriod time.Duration

	// Metrics is optional.
	Metrics DropRecorder
}

// KeyedLimiter keeps one token bucket per key (user id) and forgets buckets
// that have refilled completely, since those carry no state.
type KeyedLimiter struct {
	cfg     KeyedConfig
	mu      sync.Mutex
	buckets map[string]*Limiter
	stop    chan struct{}
	stopped sync.Once
}

// NewKeyedLimiter creates a per-key limiter. Call Stop to end the cleanup loop.
//
//	turns := NewKeyedLimiter(KeyedConfig{
//	    Name:          "nlu_user",
//	    Burst:         5,
//	    RefillRate:    20.0 / 60, // 20 turns per minute
//	    CleanupPeriod: 5 * time.Minute,
//	})
//	defer turns.Stop()
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	kl := &KeyedLimiter{
		cfg:     cfg,
		buckets: make(map[string]*Limiter),
		stop:    make(chan struct{}),
	}
	if cfg.CleanupPeriod > 0 {
		go kl.sweepLoop()
	}
	return kl
}

// Allow consumes a token for key. An empty key is always allowed.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" || kl.bucket(key).Allow() {
		return true
	}
	if kl.cfg.Metrics != nil {
		kl.cfg.Metrics.RecordRateLimiterDrop(kl.cfg.Name)
	}
	return false
}

func (kl *KeyedLimiter) bucket(key string) *Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	b, ok := kl.buckets[key]
	if !ok {
		b = New(kl.cfg.Burst, kl.cfg.RefillRate)
		kl.buckets[key] = b
	}
	return b
}

// Available returns the tokens left for key. Unseen keys have a full burst.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.Lock()
	b, ok := kl.buckets[key]
	kl.mu.Unlock()
	if !ok {
		return kl.cfg.Burst
	}
	return b.Available()
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.buckets)
}

// Cleanup forgets keys whose bucket is full and returns how many were dropped.
func (kl *KeyedLimiter) Cleanup() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	before := len(kl.buckets)
	maps.DeleteFunc(kl.buckets, func(_ string, b *Limiter) bool { return b.IsFull() })
	return before - len(kl.buckets)
}

func (kl *KeyedLimiter) sweepLoop() {
	ticker := time.NewTicker(kl.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-kl.stop:
			return
		case <-ticker.C:
			kl.Cleanup()
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stopped.Do(func() { close(kl.stop) })
}
