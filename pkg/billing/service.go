package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saasfoundry/billingsync/pkg/entitlement"
	"github.com/saasfoundry/billingsync/pkg/ratelimit"
)

// checkoutRateLimit guards checkout-session creation per identity.
const (
	checkoutRateLimit  = 5
	checkoutRateWindow = time.Minute
)

// Identity is the authenticated caller, supplied by the session system.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// Service is the subscription state synchronization engine. User actions
// enter here, call the processor directly, and optimistically write the
// resulting entitlement level for responsive UI; the processor's event
// stream, consumed by ProcessWebhookEvent, is the durable source of truth
// and re-asserts or corrects the level independently.
type Service struct {
	cfg        Config
	provider   Provider
	store      entitlement.Store
	prices     *PriceResolver
	identities *IdentityResolver
	limiter    ratelimit.Limiter
	log        *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithRateLimiter replaces the default in-memory checkout limiter. Use a
// Redis-backed limiter when the engine runs as more than one instance.
func WithRateLimiter(l ratelimit.Limiter) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the engine. Panics if provider or store is nil to fail
// fast during initialization.
func NewService(cfg Config, provider Provider, store entitlement.Store, opts ...ServiceOption) *Service {
	if provider == nil {
		panic("billing: Provider is required")
	}
	if store == nil {
		panic("billing: entitlement.Store is required")
	}

	s := &Service{
		cfg:      cfg,
		provider: provider,
		store:    store,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		limiter, err := ratelimit.NewFixedWindow(ratelimit.NewMemoryStore(), checkoutRateLimit, checkoutRateWindow)
		if err != nil {
			panic(err)
		}
		s.limiter = limiter
	}

	s.prices = NewPriceResolver(cfg, provider)
	s.identities = NewIdentityResolver(store, s.log)

	return s
}

// CheckoutIntent is the result of starting a checkout: the session
// identifier plus the opaque client token the page layer renders the
// payment form with.
type CheckoutIntent struct {
	SessionID   string `json:"session_id"`
	ClientToken string `json:"client_token"`
}

// StartCheckout begins a new subscription purchase flow for the caller.
func (s *Service) StartCheckout(ctx context.Context, key ProductKey, user Identity) Result[*CheckoutIntent] {
	res, err := s.limiter.Allow(ctx, "checkout:"+user.ID.String())
	if err != nil {
		return failOp[*CheckoutIntent](ctx, s.log, "start_checkout", err)
	}
	if !res.Allowed {
		s.log.WarnContext(ctx, "checkout rate limit hit",
			slog.String("user_id", user.ID.String()),
			slog.Duration("retry_after", res.RetryAfter()))
		return fail[*CheckoutIntent](ErrRateLimited)
	}

	price, err := s.prices.Resolve(ctx, key)
	if err != nil {
		return failOp[*CheckoutIntent](ctx, s.log, "start_checkout", err)
	}

	base, err := s.cfg.baseReturnURL()
	if err != nil {
		return failOp[*CheckoutIntent](ctx, s.log, "start_checkout", err)
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		PriceID:           price.ID,
		CustomerEmail:     user.Email,
		ClientReferenceID: user.ID.String(),
		ReturnURL:         base + "/billing/return?session_id={CHECKOUT_SESSION_ID}",
	})
	if err != nil {
		return failOp[*CheckoutIntent](ctx, s.log, "start_checkout", err)
	}

	return ok(&CheckoutIntent{SessionID: sess.ID, ClientToken: sess.ClientToken})
}

// CheckoutStatus reports a checkout session's state so the page layer can
// confirm a completed purchase on return.
type CheckoutStatus struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// GetCheckoutStatus fetches the current state of a checkout session.
func (s *Service) GetCheckoutStatus(ctx context.Context, sessionID string) Result[*CheckoutStatus] {
	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return failOp[*CheckoutStatus](ctx, s.log, "get_checkout_status", err)
	}

	return ok(&CheckoutStatus{
		SessionID:     sess.ID,
		Status:        sess.Status,
		CustomerEmail: sess.CustomerEmail,
	})
}

// SubscriptionInfo summarizes the caller's active subscription.
type SubscriptionInfo struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Level             entitlement.Level `json:"level"`
	PriceID           string            `json:"price_id,omitempty"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  time.Time         `json:"current_period_end"`
}

// GetActiveSubscription returns the caller's active subscription, or nil
// data when the caller has no billing relationship or no active
// subscription.
func (s *Service) GetActiveSubscription(ctx context.Context, userID uuid.UUID) Result[*SubscriptionInfo] {
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return failOp[*SubscriptionInfo](ctx, s.log, "get_active_subscription", err)
	}
	if rec.ExternalCustomerID == "" {
		return ok[*SubscriptionInfo](nil)
	}

	subs, err := s.provider.ListActiveSubscriptions(ctx, rec.ExternalCustomerID)
	if err != nil {
		return failOp[*SubscriptionInfo](ctx, s.log, "get_active_subscription", err)
	}
	if len(subs) == 0 {
		return ok[*SubscriptionInfo](nil)
	}

	sub := subs[0]
	info := &SubscriptionInfo{
		ID:                sub.ID,
		Status:            string(sub.Status),
		Level:             s.levelFromItems(sub.Items),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}
	if len(sub.Items) > 0 {
		info.PriceID = sub.Items[0].PriceID
	}
	return ok(info)
}

// PreviewUpgrade simulates switching the subscription to the new price and
// reports the immediate charge separately from future-period charges.
func (s *Service) PreviewUpgrade(ctx context.Context, subscriptionID, newPriceID string) Result[*Preview] {
	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return failOp[*Preview](ctx, s.log, "preview_upgrade", err)
	}

	inv, err := s.provider.PreviewPriceChange(ctx, sub, newPriceID)
	if err != nil {
		return failOp[*Preview](ctx, s.log, "preview_upgrade", err)
	}

	return ok(partitionPreview(inv, sub.CurrentPeriodEnd))
}

// UpgradeOutcome is the result of an immediate plan change.
type UpgradeOutcome struct {
	SubscriptionID string            `json:"subscription_id"`
	Level          entitlement.Level `json:"level"`

	// ConfirmationSecret is non-empty when the processor requires the
	// caller to complete additional payment confirmation before the change
	// is final. The local entitlement write is optimistic either way and is
	// confirmed or corrected by the webhook path.
	ConfirmationSecret  string `json:"confirmation_secret,omitempty"`
	PendingConfirmation bool   `json:"pending_confirmation"`
}

// Upgrade replaces the subscription's price with immediate proration and
// optimistically writes the new entitlement level locally. The optimistic
// write is a UI-responsiveness shortcut, not the authoritative update; the
// webhook path re-asserts the level from processor truth.
func (s *Service) Upgrade(ctx context.Context, subscriptionID, newPriceID string) Result[*UpgradeOutcome] {
	updated, confirmationSecret, err := s.provider.ChangeSubscriptionPrice(ctx, subscriptionID, newPriceID)
	if err != nil {
		return failOp[*UpgradeOutcome](ctx, s.log, "upgrade", err)
	}

	level := s.levelFromItems(updated.Items)
	s.writeLevelOptimistically(ctx, updated.CustomerID, level)

	return ok(&UpgradeOutcome{
		SubscriptionID:      updated.ID,
		Level:               level,
		ConfirmationSecret:  confirmationSecret,
		PendingConfirmation: confirmationSecret != "",
	})
}

// DowngradeOutcome reports when a scheduled downgrade takes effect.
type DowngradeOutcome struct {
	SubscriptionID string    `json:"subscription_id"`
	EffectiveAt    time.Time `json:"effective_at"`
}

// ScheduleDowngrade defers a plan change to the current period boundary via
// a two-phase schedule, with no proration. No local write happens here; the
// level changes when the boundary passes and the processor emits the
// resulting subscription-updated event.
func (s *Service) ScheduleDowngrade(ctx context.Context, subscriptionID, newPriceID string) Result[*DowngradeOutcome] {
	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return failOp[*DowngradeOutcome](ctx, s.log, "schedule_downgrade", err)
	}
	if sub.CurrentPeriodEnd.IsZero() {
		return fail[*DowngradeOutcome](ErrNoPeriodBoundary)
	}

	if err := s.provider.CreateDowngradeSchedule(ctx, sub, newPriceID); err != nil {
		return failOp[*DowngradeOutcome](ctx, s.log, "schedule_downgrade", err)
	}

	return ok(&DowngradeOutcome{SubscriptionID: sub.ID, EffectiveAt: sub.CurrentPeriodEnd})
}

// CancelOutcome reports the result of a cancellation request.
type CancelOutcome struct {
	SubscriptionsCanceled int       `json:"subscriptions_canceled"`
	AccessUntil           time.Time `json:"access_until,omitzero"`
}

// Cancel marks all of the customer's active subscriptions to cancel at
// period end, so paid access runs through what was already paid for, then
// optimistically degrades the local level to free. Refused when the caller
// is already on the free level or the customer reference does not belong to
// the caller.
func (s *Service) Cancel(ctx context.Context, customerRef string, caller Identity) Result[*CancelOutcome] {
	rec, err := s.store.GetByID(ctx, caller.ID)
	if err != nil {
		return failOp[*CancelOutcome](ctx, s.log, "cancel", err)
	}
	if rec.Level == entitlement.LevelFree {
		return fail[*CancelOutcome](ErrNotSubscribed)
	}
	if rec.ExternalCustomerID == "" || rec.ExternalCustomerID != customerRef {
		s.log.WarnContext(ctx, "cancel refused: customer reference mismatch",
			slog.String("user_id", caller.ID.String()))
		return fail[*CancelOutcome](ErrCustomerMismatch)
	}

	subs, err := s.provider.ListActiveSubscriptions(ctx, customerRef)
	if err != nil {
		return failOp[*CancelOutcome](ctx, s.log, "cancel", err)
	}

	outcome := &CancelOutcome{}
	for _, sub := range subs {
		if err := s.provider.CancelAtPeriodEnd(ctx, sub.ID); err != nil {
			return failOp[*CancelOutcome](ctx, s.log, "cancel", err)
		}
		outcome.SubscriptionsCanceled++
		if sub.CurrentPeriodEnd.After(outcome.AccessUntil) {
			outcome.AccessUntil = sub.CurrentPeriodEnd
		}
	}

	// The level drops to free even when zero subscriptions were found: the
	// local record said paid but the processor holds nothing to cancel, so
	// free is the converged truth.
	free := entitlement.LevelFree
	if err := s.store.UpdateByID(ctx, rec.ID, entitlement.Update{Level: &free}); err != nil {
		return failOp[*CancelOutcome](ctx, s.log, "cancel", err)
	}

	return ok(outcome)
}

// PortalSession is a pre-authenticated link to the processor's self-service
// billing UI.
type PortalSession struct {
	URL string `json:"url"`
}

// OpenBillingPortal delegates subscription self-service to the processor's
// hosted billing UI.
func (s *Service) OpenBillingPortal(ctx context.Context, userID uuid.UUID) Result[*PortalSession] {
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return failOp[*PortalSession](ctx, s.log, "open_billing_portal", err)
	}
	if rec.ExternalCustomerID == "" {
		return fail[*PortalSession](ErrNoBillingAccount)
	}

	base, err := s.cfg.baseReturnURL()
	if err != nil {
		return failOp[*PortalSession](ctx, s.log, "open_billing_portal", err)
	}

	url, err := s.provider.CreatePortalSession(ctx, rec.ExternalCustomerID, base+"/settings/billing")
	if err != nil {
		return failOp[*PortalSession](ctx, s.log, "open_billing_portal", err)
	}

	return ok(&PortalSession{URL: url})
}

// ParseEvent verifies and normalizes a raw webhook payload. The receiving
// endpoint calls this before ProcessWebhookEvent.
func (s *Service) ParseEvent(payload []byte, signature string) (*Event, error) {
	return s.provider.ConstructEvent(payload, signature)
}

// levelFromItems maps subscription line items to the highest-ranked
// entitlement level among their products. Items bound to unmapped products
// contribute nothing; a subscription with no mapped product confers free.
func (s *Service) levelFromItems(items []SubscriptionItem) entitlement.Level {
	level := entitlement.LevelFree
	for _, item := range items {
		level = entitlement.Higher(level, s.cfg.LevelForProduct(item.ProductID))
	}
	return level
}

// writeLevelOptimistically updates the local record for a customer
// reference after a successful processor mutation. Failures are logged, not
// returned: the write is a UI shortcut and the webhook path converges the
// record to processor truth regardless.
func (s *Service) writeLevelOptimistically(ctx context.Context, customerRef string, level entitlement.Level) {
	rec, err := s.identities.ResolveByExternalID(ctx, customerRef, "")
	if err != nil {
		s.log.WarnContext(ctx, "optimistic entitlement write skipped",
			slog.String("external_customer_id", customerRef),
			slog.Any("error", err))
		return
	}

	if err := s.store.UpdateByID(ctx, rec.ID, entitlement.Update{Level: &level}); err != nil {
		s.log.ErrorContext(ctx, "optimistic entitlement write failed",
			slog.String("record_id", rec.ID.String()),
			slog.Any("error", err))
	}
}

// failOp logs the full error server-side and returns the structured failure
// the caller sees. Processor and infrastructure detail never reaches the
// caller; userMessage collapses anything non-user-facing into a generic
// failure.
func failOp[T any](ctx context.Context, log *slog.Logger, op string, err error) Result[T] {
	log.ErrorContext(ctx, "billing operation failed",
		slog.String("op", op),
		slog.Any("error", err))
	return fail[T](err)
}
