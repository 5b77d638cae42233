package billing

import (
	"strings"

	"github.com/saasfoundry/billingsync/pkg/entitlement"
)

// ProductKey is the stable internal identifier for a purchasable plan.
// Product references stay immutable across price changes so operators can
// reprice without redeploying; only the processor-side price moves.
type ProductKey string

const (
	ProductBasic   ProductKey = "basic"
	ProductPremium ProductKey = "premium"
)

// Config is the engine's configuration surface: two stable product
// references and the base URL checkout/portal redirects return to.
// Fields are optional at load time; operations that need a missing value
// fail explicitly instead of falling back to a guessed price.
type Config struct {
	BasicProductID   string `env:"BILLING_BASIC_PRODUCT_ID"`
	PremiumProductID string `env:"BILLING_PREMIUM_PRODUCT_ID"`
	ReturnURL        string `env:"BILLING_RETURN_URL"`
}

// ProductID maps a product key to its configured processor product
// reference.
func (c Config) ProductID(key ProductKey) (string, error) {
	switch key {
	case ProductBasic:
		if c.BasicProductID == "" {
			return "", ErrProductNotConfigured
		}
		return c.BasicProductID, nil
	case ProductPremium:
		if c.PremiumProductID == "" {
			return "", ErrProductNotConfigured
		}
		return c.PremiumProductID, nil
	default:
		return "", ErrUnknownProduct
	}
}

// LevelForProduct maps a processor product reference to the entitlement
// level it confers. Unmapped products confer LevelFree.
func (c Config) LevelForProduct(productID string) entitlement.Level {
	switch {
	case productID == "":
		return entitlement.LevelFree
	case productID == c.PremiumProductID:
		return entitlement.LevelPremium
	case productID == c.BasicProductID:
		return entitlement.LevelBasic
	default:
		return entitlement.LevelFree
	}
}

func (c Config) baseReturnURL() (string, error) {
	if c.ReturnURL == "" {
		return "", ErrReturnURLNotSet
	}
	return strings.TrimRight(c.ReturnURL, "/"), nil
}
