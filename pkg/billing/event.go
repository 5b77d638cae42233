package billing

// EventKind is the normalized kind of a processor-pushed event. The webhook
// processor dispatches on this tagged variant; kinds outside the set below
// are accepted and ignored for forward compatibility.
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout_completed"
	EventSubscriptionUpdated  EventKind = "subscription_updated"
	EventSubscriptionDeleted  EventKind = "subscription_deleted"
	EventInvoicePaid          EventKind = "invoice_paid"
	EventInvoicePaymentFailed EventKind = "invoice_payment_failed"
	EventCustomerCreated      EventKind = "customer_created"
	EventCustomerUpdated      EventKind = "customer_updated"
	EventCustomerDeleted      EventKind = "customer_deleted"
	EventScheduleChanged      EventKind = "schedule_changed"
	EventIgnored              EventKind = "ignored"
)

// Event is a validated, normalized processor event. Only the fields relevant
// to the event's kind are populated.
type Event struct {
	Kind         EventKind
	ProviderType string // original processor event name, for logging

	CheckoutSessionID string
	SubscriptionID    string
	CustomerID        string
	CustomerEmail     string
	CustomerName      string

	// Subscription carries the parsed subscription payload for
	// subscription lifecycle events.
	Subscription *Subscription
}
