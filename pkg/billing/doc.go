// Package billing synchronizes subscription state between a payment
// processor and local entitlement records.
//
// The package implements a two-path model. The synchronous path serves
// caller-initiated operations (checkout, upgrade, downgrade, cancel, portal,
// proration preview) and returns a uniform Result envelope with optimistic
// local writes where confirmation will follow asynchronously. The
// asynchronous path is the webhook reconciliation state machine, the single
// authoritative writer of entitlement level: every handler re-derives state
// from current processor truth so replayed and out-of-order deliveries
// converge.
//
// # Architecture
//
//   - Service: synchronous operations, rate limited per caller identity
//   - Provider: abstracts the payment processor (Stripe implementation included)
//   - PriceResolver: maps configured products to their active recurring price
//   - IdentityResolver: maps processor customer references to local records
//   - ProcessWebhookEvent: the reconciliation state machine
//
// Upgrades take effect immediately with a prorated charge; downgrades are
// deferred to the period boundary through a two-phase subscription schedule;
// cancellation keeps paid access until the period ends. The local record is
// a projection of processor state, never the other way around.
//
// # Quick Start
//
//	provider, err := billing.NewStripeProvider(stripeCfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := billing.NewService(cfg, provider, store,
//		billing.WithLogger(logger),
//	)
//
//	res := svc.StartCheckout(ctx, billing.ProductPremium, billing.Identity{
//		ID:    userID,
//		Email: email,
//	})
//
//	http.Handle("/webhooks/billing", billing.WebhookHandler(svc, logger))
package billing
