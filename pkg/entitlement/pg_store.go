package entitlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the entitlement records table. It is idempotent so
// callers can run it at startup before migrations tooling is in place.
const Schema = `
CREATE TABLE IF NOT EXISTS entitlement_records (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL DEFAULT 'free',
	external_customer_id TEXT UNIQUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_entitlement_records_external_customer_id
	ON entitlement_records (external_customer_id)
	WHERE external_customer_id IS NOT NULL;
`

// PGStore is a PostgreSQL-backed Store implementation using pgx.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Store backed by the given connection pool.
// Panics on a nil pool to fail fast during initialization.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("entitlement: pgxpool.Pool is required")
	}
	return &PGStore{pool: pool}
}

// EnsureSchema creates the entitlement records table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

const selectColumns = `id, email, name, level, COALESCE(external_customer_id, ''), updated_at`

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM entitlement_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *PGStore) GetByEmail(ctx context.Context, email string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM entitlement_records WHERE lower(email) = lower($1)`, email)
	return scanRecord(row)
}

func (s *PGStore) GetByExternalID(ctx context.Context, externalID string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM entitlement_records WHERE external_customer_id = $1`, externalID)
	return scanRecord(row)
}

func (s *PGStore) Create(ctx context.Context, record *Record) error {
	if record.Email == "" {
		return ErrEmailRequired
	}

	level := record.Level
	if level == "" {
		level = LevelFree
	}

	var externalID any
	if record.ExternalCustomerID != "" {
		externalID = record.ExternalCustomerID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entitlement_records (id, email, name, level, external_customer_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		record.ID, record.Email, record.Name, level, externalID)
	if isUniqueViolation(err) {
		return ErrRecordAlreadyExists
	}
	return err
}

func (s *PGStore) UpdateByID(ctx context.Context, id uuid.UUID, upd Update) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entitlement_records
		 SET email = COALESCE($2, email),
		     name = COALESCE($3, name),
		     level = COALESCE($4, level),
		     updated_at = now()
		 WHERE id = $1`,
		id, upd.Email, upd.Name, (*string)(upd.Level))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PGStore) LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entitlement_records SET external_customer_id = $2, updated_at = now() WHERE id = $1`,
		id, externalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PGStore) UnlinkExternalID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entitlement_records SET external_customer_id = NULL, updated_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Email, &r.Name, &r.Level, &r.ExternalCustomerID, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Level = ParseLevel(string(r.Level))
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
