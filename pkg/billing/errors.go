package billing

import "errors"

var (
	// Configuration errors: the operation is refused, never guessed around.
	ErrUnknownProduct       = errors.New("unknown product key")
	ErrProductNotConfigured = errors.New("billing product is not configured")
	ErrReturnURLNotSet      = errors.New("billing return URL is not configured")
	ErrPriceNotFound        = errors.New("no active price found for product")

	// Authorization errors: refused with no state change.
	ErrCustomerMismatch = errors.New("billing customer does not belong to caller")
	ErrNotSubscribed    = errors.New("no paid subscription on this account")
	ErrNoBillingAccount = errors.New("no billing account linked to this user")

	ErrRateLimited      = errors.New("too many checkout attempts, please try again later")
	ErrNoPeriodBoundary = errors.New("subscription has no current period boundary")

	// Provider-specific errors.
	ErrMissingSecretKey          = errors.New("billing provider secret key is required")
	ErrMissingWebhookSecret      = errors.New("billing provider webhook secret is required")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrSubscriptionHasNoItems    = errors.New("subscription has no line items")
)
