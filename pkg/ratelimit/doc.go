// Package ratelimit provides a fixed-window rate limiter used to guard
// checkout-session creation against abusive repeated calls.
//
// The limiter counts admissions per key within a fixed window; the counter
// resets when the window elapses and denied requests never advance it. Two
// Store backends are provided: MemoryStore, valid only while the engine runs
// as a single logical instance, and RedisStore, a shared counter that keeps
// the window correct across multiple instances.
//
//	store := ratelimit.NewMemoryStore()
//	limiter, err := ratelimit.NewFixedWindow(store, 5, time.Minute)
//	res, err := limiter.Allow(ctx, "checkout:"+userID)
//	if !res.Allowed {
//		// refuse with res.RetryAfter()
//	}
package ratelimit
