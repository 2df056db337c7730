package ratelimit

import (
	"sync"

	"pkt.systems/boxmux/schema"
)

// Limiter keeps one independent token bucket per box, so a flood from one
// box cannot starve another's budget.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[schema.BoxID]*TokenBucket
	capacity   int
	refillRate int
}

// NewLimiter constructs a per-box limiter. Capacity and rate apply to each
// box's bucket individually.
func NewLimiter(capacity, refillRate int) *Limiter {
	return &Limiter{
		buckets:    make(map[schema.BoxID]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// AllowBatchOutput consumes max(batchSize, 1) tokens from the box's bucket,
// so large batches are proportionally throttled. Returns false when the
// budget is exhausted; the caller buffers or drops.
func (l *Limiter) AllowBatchOutput(boxID schema.BoxID, batchSize int) bool {
	if l == nil {
		return true
	}
	return l.bucket(boxID).TryConsume(batchSize)
}

// AvailableTokens reports the box's current budget without consuming.
func (l *Limiter) AvailableTokens(boxID schema.BoxID) int {
	if l == nil {
		return 0
	}
	return l.bucket(boxID).Available()
}

// Forget drops the box's bucket, for box teardown.
func (l *Limiter) Forget(boxID schema.BoxID) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, boxID)
	l.mu.Unlock()
}

func (l *Limiter) bucket(boxID schema.BoxID) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket := l.buckets[boxID]
	if bucket == nil {
		bucket = NewTokenBucket(l.capacity, l.refillRate)
		l.buckets[boxID] = bucket
	}
	return bucket
}
