// Package ratelimit provides per-API-key token-bucket admission control.
// Buckets are process-local; cross-instance coordination is out of scope.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per API key id. Buckets are created
// lazily with capacity = rate_limit_per_minute and a refill rate of
// rate_limit_per_minute/60 tokens per second.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow consumes one token from the key's bucket, creating it on first
// use. Returns false when the bucket is empty.
func (l *Limiter) Allow(keyID string, perMinute int) bool {
	return l.bucket(keyID, perMinute).Allow()
}

// RetryAfter estimates how long until the next token is available, for
// the Retry-After header on 429 responses.
func (l *Limiter) RetryAfter(keyID string, perMinute int) time.Duration {
	b := l.bucket(keyID, perMinute)
	r := b.Reserve()
	if !r.OK() {
		return time.Minute
	}
	delay := r.Delay()
	r.Cancel()
	if delay < 0 {
		return 0
	}
	return delay
}

// bucket returns the key's bucket, inserting lazily with a double-checked
// pattern so concurrent first requests race on the lock, not the map.
func (l *Limiter) bucket(keyID string, perMinute int) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[keyID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[keyID]; ok {
		return b
	}
	if perMinute < 1 {
		perMinute = 1
	}
	b = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	l.buckets[keyID] = b
	return b
}
