package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/saasfoundry/billingsync/pkg/entitlement"
)

// IdentityResolver finds the local entitlement record for an external
// customer reference. A billing relationship can be created before, after,
// or independently of a local identity being recognized, so an unknown
// reference falls back to an email lookup and links the reference onto the
// matched record on the way through.
type IdentityResolver struct {
	store entitlement.Store
	log   *slog.Logger
}

// NewIdentityResolver creates a resolver over the entitlement store.
// Panics on a nil store to fail fast during initialization.
func NewIdentityResolver(store entitlement.Store, log *slog.Logger) *IdentityResolver {
	if store == nil {
		panic("billing: entitlement.Store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &IdentityResolver{store: store, log: log}
}

// ResolveByExternalID looks up the entitlement record by external customer
// reference. When absent and an email hint is supplied, it looks up by
// email, persists the reference onto that record, and re-resolves. Returns
// entitlement.ErrRecordNotFound only when neither lookup succeeds.
func (r *IdentityResolver) ResolveByExternalID(ctx context.Context, externalID, emailHint string) (*entitlement.Record, error) {
	if externalID == "" {
		return nil, entitlement.ErrRecordNotFound
	}

	rec, err := r.store.GetByExternalID(ctx, externalID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, entitlement.ErrRecordNotFound) {
		return nil, err
	}

	if emailHint == "" {
		return nil, entitlement.ErrRecordNotFound
	}

	rec, err = r.store.GetByEmail(ctx, emailHint)
	if err != nil {
		return nil, err
	}

	if err := r.store.LinkExternalID(ctx, rec.ID, externalID); err != nil {
		return nil, err
	}
	r.log.InfoContext(ctx, "linked external customer reference by email",
		slog.String("record_id", rec.ID.String()),
		slog.String("external_customer_id", externalID))

	return r.store.GetByExternalID(ctx, externalID)
}
