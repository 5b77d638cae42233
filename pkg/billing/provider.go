package billing

import (
	"context"
	"time"
)

// Provider defines the billing processor capabilities the engine depends on.
// The processor is a black box: the engine calls these operations and
// consumes the processor's event stream; it never stores processor-owned
// state beyond the customer reference on the entitlement record.
//
// Implementations handle processor-specific quirks internally and must not
// leak SDK types through this interface.
type Provider interface {
	// ActivePrice returns the currently active price for a product
	// reference. Returns ErrPriceNotFound when the product has no active
	// price.
	ActivePrice(ctx context.Context, productID string) (*Price, error)

	// CreateCheckoutSession starts a subscription purchase flow and returns
	// the session together with the client token the page layer uses to
	// render the payment form.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// GetCheckoutSession fetches the current state of a checkout session.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// ListActiveSubscriptions returns the customer's subscriptions that
	// confer paid entitlement (active and trialing).
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error)

	// ChangeSubscriptionPrice replaces the subscription's single line item
	// with the new price, prorating immediately. The returned client secret
	// is non-empty when the processor requires additional payment
	// confirmation before the change is final.
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*Subscription, string, error)

	// CreateDowngradeSchedule creates a two-phase schedule: the current
	// price until the current period boundary, the new price from that
	// boundary onward with no proration.
	CreateDowngradeSchedule(ctx context.Context, sub *Subscription, newPriceID string) error

	// CancelAtPeriodEnd marks a subscription to cancel when the current
	// period ends, retaining paid access until then.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error

	// CreatePortalSession returns a pre-authenticated URL to the
	// processor's self-service billing UI.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// PreviewPriceChange simulates switching the subscription's line item
	// to the new price as of now, with proration, without committing.
	PreviewPriceChange(ctx context.Context, sub *Subscription, newPriceID string) (*InvoicePreview, error)

	// ConstructEvent verifies the signature of a pushed event payload and
	// normalizes it into the engine's event shape.
	ConstructEvent(payload []byte, signature string) (*Event, error)
}

// Price is a processor price bound to a product.
type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64 // smallest currency unit
	Currency   string
}

// CheckoutParams contains data needed to create a checkout session.
type CheckoutParams struct {
	PriceID           string
	CustomerEmail     string // pre-fill when known
	ClientReferenceID string // local identity key, echoed back on completion
	ReturnURL         string // encodes the session identifier placeholder
}

// CheckoutSession represents a processor checkout session.
type CheckoutSession struct {
	ID             string
	ClientToken    string // opaque token the page layer renders the payment form with
	Status         string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string // set once the session completes
}

// SubscriptionStatus is the processor-owned subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// ConfersPaidEntitlement reports whether the status grants paid access.
// Only active and trialing subscriptions do.
func (s SubscriptionStatus) ConfersPaidEntitlement() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// SubscriptionItem is a subscription line item bound to a price and,
// transitively, a product.
type SubscriptionItem struct {
	ID        string
	PriceID   string
	ProductID string
}

// Subscription is the processor-owned subscription, referenced not stored.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Items              []SubscriptionItem
}

// InvoiceLine is one line of a simulated or real invoice.
type InvoiceLine struct {
	Description string
	Amount      int64
	Currency    string
	PeriodEnd   time.Time // zero when the processor supplies no period
	Proration   bool
}

// InvoicePreview is the processor's simulation of a price change.
type InvoicePreview struct {
	Currency  string
	Total     int64
	AmountDue int64
	Lines     []InvoiceLine
}
