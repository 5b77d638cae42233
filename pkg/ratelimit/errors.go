package ratelimit

import "errors"

var (
	ErrStoreRequired   = errors.New("rate limit store is required")
	ErrKeyRequired     = errors.New("rate limit key is required")
	ErrInvalidLimit    = errors.New("rate limit must be positive")
	ErrInvalidInterval = errors.New("rate limit window must be positive")
)
