package entitlement

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and
// single-instance development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]*Record),
	}
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = normalizeEmail(email)
	for _, r := range s.records {
		if normalizeEmail(r.Email) == email && email != "" {
			return cloneRecord(r), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) GetByExternalID(ctx context.Context, externalID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ExternalCustomerID == externalID && externalID != "" {
			return cloneRecord(r), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) Create(ctx context.Context, record *Record) error {
	if record.Email == "" {
		return ErrEmailRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return ErrRecordAlreadyExists
	}
	email := normalizeEmail(record.Email)
	for _, r := range s.records {
		if normalizeEmail(r.Email) == email {
			return ErrRecordAlreadyExists
		}
	}

	clone := cloneRecord(record)
	if clone.Level == "" {
		clone.Level = LevelFree
	}
	clone.UpdatedAt = time.Now().UTC()
	s.records[record.ID] = clone
	return nil
}

func (s *MemoryStore) UpdateByID(ctx context.Context, id uuid.UUID, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}

	if upd.Email != nil {
		r.Email = *upd.Email
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Level != nil {
		r.Level = *upd.Level
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	r.ExternalCustomerID = externalID
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UnlinkExternalID(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	r.ExternalCustomerID = ""
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneRecord(r *Record) *Record {
	clone := *r
	return &clone
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
