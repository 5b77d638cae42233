package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically checks the counter against the limit and
// increments only when the request is admitted, setting the window TTL on
// the first admission. Returns {count, pttl_ms, allowed}.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
	return {current, redis.call("PTTL", KEYS[1]), 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {current, redis.call("PTTL", KEYS[1]), 1}
`)

// RedisStore implements a shared fixed-window counter store on Redis.
// This is the deployment-safe backend: counters stay correct when the
// engine runs as multiple instances behind a load balancer.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the key namespace prefix. Defaults to "ratelimit:".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed store.
// Panics on a nil client to fail fast during initialization.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("ratelimit: redis client is required")
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: "ratelimit:",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IncrementIfAllowed implements Store.
func (s *RedisStore) IncrementIfAllowed(ctx context.Context, key string, limit int, window time.Duration) (int64, time.Duration, bool, error) {
	res, err := fixedWindowScript.Run(ctx, s.client,
		[]string{s.keyPrefix + key}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, false, fmt.Errorf("ratelimit: redis script failed: %w", err)
	}
	if len(res) != 3 {
		return 0, 0, false, fmt.Errorf("ratelimit: unexpected script result length %d", len(res))
	}

	count, _ := res[0].(int64)
	ttlMs, _ := res[1].(int64)
	allowed, _ := res[2].(int64)

	ttl := time.Duration(ttlMs) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}

	return count, ttl, allowed == 1, nil
}

// Delete removes the counter for the given key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}
