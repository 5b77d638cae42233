package ratelimit

import (
	"context"
	"time"
)

// FixedWindow implements a fixed-window rate limiter: the first admission for
// a key starts a window, subsequent admissions increment a counter, and the
// counter resets when the window elapses. Cheaper than sliding-window
// tracking; the worst-case burst at a window boundary is 2x the limit, which
// is acceptable for abuse protection on checkout-session creation.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
}

// NewFixedWindow creates a new fixed-window rate limiter.
func NewFixedWindow(store Store, limit int, window time.Duration) (*FixedWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidInterval
	}

	return &FixedWindow{
		store:  store,
		limit:  limit,
		window: window,
	}, nil
}

// Allow checks if a single request is admitted for the given key.
// Denied requests leave the window counter untouched.
func (fw *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, ttl, allowed, err := fw.store.IncrementIfAllowed(ctx, key, fw.limit, fw.window)
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   allowed,
		Limit:     fw.limit,
		Remaining: max(0, fw.limit-int(count)),
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Reset clears the counter for the given key.
func (fw *FixedWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return fw.store.Delete(ctx, key)
}
