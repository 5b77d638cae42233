package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasfoundry/billingsync/pkg/ratelimit"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*ratelimit.FixedWindow, *ratelimit.MemoryStore) {
	t.Helper()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	limiter, err := ratelimit.NewFixedWindow(store, limit, window)
	require.NoError(t, err)
	return limiter, store
}

func TestNewFixedWindow_Validation(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	_, err := ratelimit.NewFixedWindow(nil, 5, time.Minute)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)

	_, err = ratelimit.NewFixedWindow(store, 0, time.Minute)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)

	_, err = ratelimit.NewFixedWindow(store, 5, 0)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidInterval)
}

func TestFixedWindow_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	limiter, store := newLimiter(t, 5, time.Minute)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 4, res.Remaining)
	assert.EqualValues(t, 1, store.Count("user-1"))

	for i := 0; i < 4; i++ {
		res, err = limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.Equal(t, 0, res.Remaining)
}

func TestFixedWindow_SixthCallRefused(t *testing.T) {
	t.Parallel()

	limiter, store := newLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Positive(t, res.RetryAfter())

	// Denied requests never advance the counter past the limit.
	assert.EqualValues(t, 5, store.Count("user-1"))
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter, _ := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFixedWindow_WindowExpiryResetsCounter(t *testing.T) {
	t.Parallel()

	limiter, store := newLimiter(t, 2, 30*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(40 * time.Millisecond)

	// A new window starts with count 1.
	res, err = limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.EqualValues(t, 1, store.Count("user-1"))
}

func TestFixedWindow_Reset(t *testing.T) {
	t.Parallel()

	limiter, store := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, limiter.Reset(ctx, "user-1"))
	assert.EqualValues(t, 0, store.Count("user-1"))

	res, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFixedWindow_EmptyKey(t *testing.T) {
	t.Parallel()

	limiter, _ := newLimiter(t, 5, time.Minute)

	_, err := limiter.Allow(context.Background(), "")
	assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)

	err = limiter.Reset(context.Background(), "")
	assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
}
