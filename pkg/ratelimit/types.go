package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Limit is the maximum number of admissions per window.
	Limit int

	// Remaining is the number of admissions left in the current window.
	Remaining int

	// ResetAt is the time the current window expires.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is admitted.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if a single request is admitted for the given key.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the counter for the given key.
	Reset(ctx context.Context, key string) error
}

// Store defines the counter backend for fixed-window limiting.
// A shared backend (e.g. Redis) keeps the window correct when the engine
// runs as more than one instance.
type Store interface {
	// IncrementIfAllowed atomically increments the counter for the key when
	// it is below limit, starting a new window when none is active. Denied
	// requests leave the counter untouched, so it never exceeds limit.
	// Returns the counter value after the call, the time left until the
	// window resets, and whether the request was admitted.
	IncrementIfAllowed(ctx context.Context, key string, limit int, window time.Duration) (count int64, ttl time.Duration, allowed bool, err error)

	// Delete removes the counter for the given key.
	Delete(ctx context.Context, key string) error
}
