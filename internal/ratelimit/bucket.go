// Package ratelimit bounds how fast captured output may be delivered
// toward the render loop. Buckets are advisory: they hold no queue, and
// the caller decides whether to drop, delay, or buffer rejected output.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a lazily refilled token bucket.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket constructs a full bucket with the given capacity and
// refill rate in tokens per second.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = 1
	}
	b := &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		now:        time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// TryConsume refills based on elapsed wall-clock time, then deducts n
// tokens if sufficient. State is unchanged on rejection.
func (b *TokenBucket) TryConsume(n int) bool {
	if n <= 0 {
		n = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Available performs the lazy refill and reports the current token count
// without consuming.
func (b *TokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return int(b.tokens)
}

// refill is called with the lock held. Token count is clamped at capacity
// regardless of idle time.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
