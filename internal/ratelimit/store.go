// Package ratelimit implements fixed-window request counting keyed by
// (client identifier, route class). Counters live in an injectable Store
// so single-instance deployments run in-process while multi-instance
// deployments share counters through Redis.
package ratelimit

import (
	"context"
	"time"
)

// Store is the backing counter store. Increment must be atomic per key
// with respect to concurrent callers.
type Store interface {
	// Get returns the current count and window expiry for a key.
	// A missing or expired key returns (0, zero time, nil).
	Get(ctx context.Context, key string) (int64, time.Time, error)
	// Increment adds one to the key's counter, starting a new window of
	// the given length when the key is absent or expired, and returns
	// the post-increment count.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Reset removes the counter for a key.
	Reset(ctx context.Context, key string) error
	Close() error
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Check increments the counter for key and decides whether the request is
// within budget. The count at the limit is still allowed; the first count
// over it is denied with a positive RetryAfter.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	count, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}

	_, resetAt, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if resetAt.IsZero() {
		resetAt = time.Now().Add(window)
	}

	result := &Result{
		Limit:     limit,
		Allowed:   count <= limit,
		Remaining: limit - count,
		ResetAt:   resetAt,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = time.Until(resetAt)
		if result.RetryAfter < time.Second {
			result.RetryAfter = time.Second
		}
	}
	return result, nil
}
