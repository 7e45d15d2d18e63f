package webhook

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// dedupe remembers recently seen message ids so redeliveries are dropped.
// Entries expire after ttl; beyond size the least recently seen id goes first.
type dedupe struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func newDedupe(size int, ttl time.Duration) *dedupe {
	return &dedupe{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen records mid and reports whether it was already present. Empty ids are never duplicates.
func (d *dedupe) Seen(mid string) bool {
	if mid == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen.Get(mid); ok {
		return true
	}
	d.seen.Add(mid, struct{}{})
	return false
}

func (d *dedupe) Len() int {
	return d.seen.Len()
}
