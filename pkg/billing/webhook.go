package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saasfoundry/billingsync/pkg/entitlement"
	"github.com/saasfoundry/billingsync/pkg/sanitizer"
)

// ProcessWebhookEvent is the reconciliation state machine: the single
// authoritative writer of entitlement level in the asynchronous path. Events
// arrive later, out of order, and potentially more than once; every handler
// re-derives state from current processor truth rather than accumulating, so
// replays converge instead of compounding.
//
// Errors are returned only for processor-side and store failures so the
// receiving endpoint can signal a redelivery request. Reconciliation gaps —
// an event referencing an external reference with no matching local record
// and no linkable email — are logged and swallowed: no record is created, no
// crash.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}

	switch event.Kind {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case EventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event)
	case EventCustomerCreated:
		return s.handleCustomerCreated(ctx, event)
	case EventCustomerUpdated:
		return s.handleCustomerUpdated(ctx, event)
	case EventCustomerDeleted:
		return s.handleCustomerDeleted(ctx, event)
	case EventScheduleChanged:
		// The resulting level change arrives via the subsequent
		// subscription-updated event.
		s.log.InfoContext(ctx, "subscription schedule event observed",
			slog.String("provider_type", event.ProviderType))
		return nil
	default:
		// Forward compatible: unconsumed kinds are accepted and ignored.
		return nil
	}
}

// handleCheckoutCompleted promotes a newly purchased identity. The level is
// derived from the created subscription's line items, not from the session
// payload, so a replayed or stale event still lands on current truth.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	if event.SubscriptionID == "" {
		s.log.WarnContext(ctx, "checkout completed without subscription reference",
			slog.String("checkout_session_id", event.CheckoutSessionID))
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}

	customerRef := event.CustomerID
	if customerRef == "" {
		customerRef = sub.CustomerID
	}

	rec, err := s.identities.ResolveByExternalID(ctx, customerRef, event.CustomerEmail)
	if err != nil {
		return s.swallowGap(ctx, event, err)
	}

	return s.writeLevel(ctx, rec.ID, s.levelFromItems(sub.Items))
}

// handleSubscriptionUpdated re-asserts the level for active and trialing
// subscriptions. Other statuses hold the prior level: a single payment
// failure must not downgrade anyone, and termination arrives as its own
// deleted event.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	sub := event.Subscription
	if sub == nil {
		return nil
	}

	if !sub.Status.ConfersPaidEntitlement() {
		s.log.InfoContext(ctx, "entitlement held for non-conferring subscription status",
			slog.String("subscription_id", sub.ID),
			slog.String("status", string(sub.Status)))
		return nil
	}

	rec, err := s.identities.ResolveByExternalID(ctx, sub.CustomerID, event.CustomerEmail)
	if err != nil {
		return s.swallowGap(ctx, event, err)
	}

	return s.writeLevel(ctx, rec.ID, s.levelFromItems(sub.Items))
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	rec, err := s.identities.ResolveByExternalID(ctx, event.CustomerID, "")
	if err != nil {
		return s.swallowGap(ctx, event, err)
	}

	return s.writeLevel(ctx, rec.ID, entitlement.LevelFree)
}

// handleInvoicePaid re-derives the level from the subscription's current
// items. This guards against a missed subscription-updated event: every
// successful payment re-asserts the projection.
func (s *Service) handleInvoicePaid(ctx context.Context, event *Event) error {
	if event.SubscriptionID == "" {
		// One-off invoice, not a subscription invoice.
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}

	level := entitlement.LevelFree
	if sub.Status.ConfersPaidEntitlement() {
		level = s.levelFromItems(sub.Items)
	}

	rec, err := s.identities.ResolveByExternalID(ctx, event.CustomerID, event.CustomerEmail)
	if err != nil {
		return s.swallowGap(ctx, event, err)
	}

	return s.writeLevel(ctx, rec.ID, level)
}

// handleInvoicePaymentFailed holds the entitlement at its prior level. The
// processor retries the charge; only a subscription-deleted event degrades
// the record.
func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *Event) error {
	s.log.WarnContext(ctx, "invoice payment failed, entitlement held",
		slog.String("external_customer_id", event.CustomerID),
		slog.String("subscription_id", event.SubscriptionID))
	return nil
}

// handleCustomerCreated establishes or links the local record for a new
// billing relationship. The record is keyed by email; without one there is
// nothing to key on and the event is logged as a gap.
func (s *Service) handleCustomerCreated(ctx context.Context, event *Event) error {
	if event.CustomerID == "" {
		return nil
	}

	if _, err := s.store.GetByExternalID(ctx, event.CustomerID); err == nil {
		return nil
	} else if !errors.Is(err, entitlement.ErrRecordNotFound) {
		return err
	}

	if event.CustomerEmail == "" {
		s.log.WarnContext(ctx, "customer created without email, no record created",
			slog.String("external_customer_id", event.CustomerID))
		return nil
	}

	rec, err := s.store.GetByEmail(ctx, event.CustomerEmail)
	switch {
	case err == nil:
		if rec.ExternalCustomerID != "" {
			s.log.WarnContext(ctx, "customer created for already linked record",
				slog.String("record_id", rec.ID.String()),
				slog.String("external_customer_id", event.CustomerID))
			return nil
		}
		return s.store.LinkExternalID(ctx, rec.ID, event.CustomerID)
	case errors.Is(err, entitlement.ErrRecordNotFound):
		name := sanitizer.NormalizeName(event.CustomerName)
		if !sanitizer.ValidDisplayName(name) {
			name = ""
		}
		return s.store.Create(ctx, &entitlement.Record{
			ID:                 uuid.New(),
			Email:              event.CustomerEmail,
			Name:               name,
			Level:              entitlement.LevelFree,
			ExternalCustomerID: event.CustomerID,
		})
	default:
		return err
	}
}

// handleCustomerUpdated syncs display name and, in one narrow case, email.
// A name that looks like a payment-card number is rejected and the prior
// name retained. Email is never overwritten unless the local record had
// none; overwriting would break sign-in.
func (s *Service) handleCustomerUpdated(ctx context.Context, event *Event) error {
	rec, err := s.identities.ResolveByExternalID(ctx, event.CustomerID, event.CustomerEmail)
	if err != nil {
		return s.swallowGap(ctx, event, err)
	}

	upd := entitlement.Update{}

	if event.CustomerName != "" {
		if sanitizer.ValidDisplayName(event.CustomerName) {
			name := sanitizer.NormalizeName(event.CustomerName)
			upd.Name = &name
		} else {
			s.log.WarnContext(ctx, "rejected structurally invalid customer name",
				slog.String("record_id", rec.ID.String()))
		}
	}

	if rec.Email == "" && event.CustomerEmail != "" {
		email := event.CustomerEmail
		upd.Email = &email
	}

	if upd.Name == nil && upd.Email == nil {
		return nil
	}
	return s.store.UpdateByID(ctx, rec.ID, upd)
}

// handleCustomerDeleted unlinks the billing relationship and degrades the
// record to free. The record itself is never deleted.
func (s *Service) handleCustomerDeleted(ctx context.Context, event *Event) error {
	rec, err := s.identities.ResolveByExternalID(ctx, event.CustomerID, "")
	if err != nil {
		return s.swallowGap(ctx, event, err)
	}

	if err := s.store.UnlinkExternalID(ctx, rec.ID); err != nil {
		return err
	}
	return s.writeLevel(ctx, rec.ID, entitlement.LevelFree)
}

// writeLevel is the authoritative entitlement write for the webhook path.
func (s *Service) writeLevel(ctx context.Context, recordID uuid.UUID, level entitlement.Level) error {
	if err := s.store.UpdateByID(ctx, recordID, entitlement.Update{Level: &level}); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "entitlement level written",
		slog.String("record_id", recordID.String()),
		slog.String("level", string(level)))
	return nil
}

// swallowGap converts a resolution miss into a logged no-op, while real
// store failures still propagate for redelivery.
func (s *Service) swallowGap(ctx context.Context, event *Event, err error) error {
	if errors.Is(err, entitlement.ErrRecordNotFound) {
		s.log.WarnContext(ctx, "event references no resolvable local record",
			slog.String("provider_type", event.ProviderType),
			slog.String("external_customer_id", event.CustomerID))
		return nil
	}
	return err
}
