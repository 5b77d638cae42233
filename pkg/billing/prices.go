package billing

import (
	"context"
	"errors"
)

// PriceResolver maps a stable internal product key to the processor's
// currently active price. Price identifiers are allowed to change over time
// while product references are not, so the lookup happens on every call
// rather than being cached at startup.
type PriceResolver struct {
	cfg      Config
	provider Provider
}

// NewPriceResolver creates a resolver over the configured product
// references. Panics on a nil provider to fail fast during initialization.
func NewPriceResolver(cfg Config, provider Provider) *PriceResolver {
	if provider == nil {
		panic("billing: Provider is required")
	}
	return &PriceResolver{cfg: cfg, provider: provider}
}

// Resolve returns the active price for a product key. Fails with
// ErrUnknownProduct, ErrProductNotConfigured, or ErrPriceNotFound; it never
// falls back to a guessed price.
func (r *PriceResolver) Resolve(ctx context.Context, key ProductKey) (*Price, error) {
	productID, err := r.cfg.ProductID(key)
	if err != nil {
		return nil, err
	}

	price, err := r.provider.ActivePrice(ctx, productID)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, ErrPriceNotFound
	}
	return price, nil
}

// IsNotFound reports whether a resolution error means the product or price
// could not be found, as opposed to a processor call failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrProductNotConfigured) ||
		errors.Is(err, ErrPriceNotFound)
}
