package entitlement

import (
	"context"

	"github.com/google/uuid"
)

// Update carries the mutable fields for UpdateByID. Nil pointers leave the
// corresponding field untouched, so callers can update a single field without
// reading the record first.
type Update struct {
	Email *string
	Name  *string
	Level *Level
}

// Store defines the persistence contract for entitlement records.
// All operations are single-record; no multi-record transactions are required.
// Lookups return ErrRecordNotFound when no record matches.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByEmail(ctx context.Context, email string) (*Record, error)
	GetByExternalID(ctx context.Context, externalID string) (*Record, error)

	// Create persists a new record. Returns ErrRecordAlreadyExists when a
	// record with the same ID or email already exists.
	Create(ctx context.Context, record *Record) error

	// UpdateByID applies the non-nil fields of upd to the record.
	UpdateByID(ctx context.Context, id uuid.UUID, upd Update) error

	// LinkExternalID sets the external customer reference on a record.
	// UnlinkExternalID clears it. Both bump the record's update timestamp.
	LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	UnlinkExternalID(ctx context.Context, id uuid.UUID) error
}
