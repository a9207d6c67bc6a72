// Package ratelimit keeps one token bucket per key (user id, client IP).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed is a set of rate limiters created on first use.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// PerMinute creates a limiter allowing n events per minute per key, with burst b.
func PerMinute(n float64, b int) *Keyed {
	return New(rate.Limit(n/60), b)
}

// New creates a keyed limiter. A non-positive burst is treated as 1.
func New(limit rate.Limit, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		limiters: make(map[string]*entry),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether an event for key may happen now and consumes a token if so.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	e, ok := k.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Cleanup drops limiters idle for longer than idle and returns how many were removed.
func (k *Keyed) Cleanup(idle time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := k.now().Add(-idle)
	n := 0
	for key, e := range k.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(k.limiters, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
