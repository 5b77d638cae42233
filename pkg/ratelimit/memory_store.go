package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory fixed-window counter store.
// Correct only when the engine runs as a single logical instance; use
// RedisStore for multi-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	startOnce       sync.Once
	stopOnce        sync.Once
}

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the janitor interval for expired windows.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates a new in-memory store with automatic cleanup of
// expired windows. The cleanup goroutine starts on first use, so an idle
// store costs nothing.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*window),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IncrementIfAllowed implements Store.
func (s *MemoryStore) IncrementIfAllowed(ctx context.Context, key string, limit int, windowDur time.Duration) (int64, time.Duration, bool, error) {
	s.startOnce.Do(func() { go s.cleanupLoop() })

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, exists := s.windows[key]

	// Start a new window on first admission or after expiry.
	if !exists || now.After(w.expiresAt) {
		w = &window{count: 1, expiresAt: now.Add(windowDur)}
		s.windows[key] = w
		return w.count, windowDur, true, nil
	}

	if w.count >= int64(limit) {
		return w.count, time.Until(w.expiresAt), false, nil
	}

	w.count++
	return w.count, time.Until(w.expiresAt), true, nil
}

// Delete removes the counter for the given key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Count returns the current counter for a key, zero when no window is active.
func (s *MemoryStore) Count(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists || time.Now().After(w.expiresAt) {
		return 0
	}
	return w.count
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, w := range s.windows {
		if now.After(w.expiresAt) {
			delete(s.windows, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call before first use; a
// janitor started afterwards observes the closed channel and exits.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
