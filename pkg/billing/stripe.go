package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/invoice"
	"github.com/stripe/stripe-go/v79/price"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/subscriptionschedule"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeConfig holds the Stripe API credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements Provider against the Stripe API with stripe-go.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider configures the stripe-go client and returns a provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	stripe.Key = cfg.SecretKey

	return &StripeProvider{webhookSecret: cfg.WebhookSecret}, nil
}

// ActivePrice returns the active recurring price for a product. Products with
// several active prices resolve to the first recurring one the API returns.
func (p *StripeProvider) ActivePrice(ctx context.Context, productID string) (*Price, error) {
	params := &stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	}
	params.Context = ctx

	iter := price.List(params)
	for iter.Next() {
		pr := iter.Price()
		if pr.Recurring == nil {
			continue
		}
		return convertPrice(pr), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list prices for product %s: %w", productID, err)
	}

	return nil, ErrPriceNotFound
}

// CreateCheckoutSession starts an embedded-mode checkout session. The
// returned session carries the client token the frontend mounts the payment
// form with.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		UIMode: stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		ReturnURL: stripe.String(cp.ReturnURL),
	}
	params.Context = ctx
	if cp.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(cp.CustomerEmail)
	}
	if cp.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(cp.ClientReferenceID)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return convertCheckoutSession(sess), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	sess, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", sessionID, err)
	}
	return convertCheckoutSession(sess), nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return convertSubscription(sub), nil
}

// ListActiveSubscriptions lists the customer's subscriptions that confer
// paid entitlement. The query asks for all statuses and filters locally:
// a status filter of "active" would hide trialing subscriptions, which are
// paid-entitled and must remain visible to cancellation.
func (p *StripeProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var subs []*Subscription
	iter := subscription.List(params)
	for iter.Next() {
		sub := convertSubscription(iter.Subscription())
		if !sub.Status.ConfersPaidEntitlement() {
			continue
		}
		subs = append(subs, sub)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions for customer %s: %w", customerID, err)
	}
	return subs, nil
}

// ChangeSubscriptionPrice swaps the subscription's item to the new price with
// an immediate prorated charge. When the resulting payment requires user
// action, the returned secret lets the frontend confirm it.
func (p *StripeProvider) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*Subscription, string, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, "", ErrSubscriptionHasNoItems
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
		PaymentBehavior:   stripe.String("allow_incomplete"),
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	updated, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, "", fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}

	confirmationSecret := ""
	if updated.LatestInvoice != nil && updated.LatestInvoice.PaymentIntent != nil {
		pi := updated.LatestInvoice.PaymentIntent
		if pi.Status == stripe.PaymentIntentStatusRequiresAction {
			confirmationSecret = pi.ClientSecret
		}
	}

	return convertSubscription(updated), confirmationSecret, nil
}

// CreateDowngradeSchedule attaches a two-phase schedule to the subscription:
// the current price runs untouched until the period boundary, then the new
// price takes over without proration. Nothing is charged or credited at
// schedule time.
func (p *StripeProvider) CreateDowngradeSchedule(ctx context.Context, sub *Subscription, newPriceID string) error {
	if len(sub.Items) == 0 {
		return ErrSubscriptionHasNoItems
	}

	createParams := &stripe.SubscriptionScheduleParams{
		FromSubscription: stripe.String(sub.ID),
	}
	createParams.Context = ctx

	sched, err := subscriptionschedule.New(createParams)
	if err != nil {
		return fmt.Errorf("create schedule from subscription %s: %w", sub.ID, err)
	}

	updateParams := &stripe.SubscriptionScheduleParams{
		EndBehavior: stripe.String("release"),
		Phases: []*stripe.SubscriptionSchedulePhaseParams{
			{
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{
						Price:    stripe.String(sub.Items[0].PriceID),
						Quantity: stripe.Int64(1),
					},
				},
				StartDate: stripe.Int64(sub.CurrentPeriodStart.Unix()),
				EndDate:   stripe.Int64(sub.CurrentPeriodEnd.Unix()),
			},
			{
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{
						Price:    stripe.String(newPriceID),
						Quantity: stripe.Int64(1),
					},
				},
				StartDate:         stripe.Int64(sub.CurrentPeriodEnd.Unix()),
				ProrationBehavior: stripe.String("none"),
			},
		},
	}
	updateParams.Context = ctx

	if _, err := subscriptionschedule.Update(sched.ID, updateParams); err != nil {
		return fmt.Errorf("update schedule %s phases: %w", sched.ID, err)
	}
	return nil
}

func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription %s at period end: %w", subscriptionID, err)
	}
	return nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session for customer %s: %w", customerID, err)
	}
	return sess.URL, nil
}

// PreviewPriceChange asks the processor for the upcoming invoice as if the
// subscription's item were switched to the new price right now, without
// performing the switch.
func (p *StripeProvider) PreviewPriceChange(ctx context.Context, sub *Subscription, newPriceID string) (*InvoicePreview, error) {
	if len(sub.Items) == 0 {
		return nil, ErrSubscriptionHasNoItems
	}

	params := &stripe.InvoiceUpcomingParams{
		Customer:     stripe.String(sub.CustomerID),
		Subscription: stripe.String(sub.ID),
		SubscriptionItems: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		SubscriptionProrationBehavior: stripe.String("create_prorations"),
		SubscriptionProrationDate:     stripe.Int64(time.Now().Unix()),
	}
	params.Context = ctx

	inv, err := invoice.Upcoming(params)
	if err != nil {
		return nil, fmt.Errorf("preview upcoming invoice for subscription %s: %w", sub.ID, err)
	}

	preview := &InvoicePreview{
		Currency:  string(inv.Currency),
		Total:     inv.Total,
		AmountDue: inv.AmountDue,
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			il := InvoiceLine{
				Description: line.Description,
				Amount:      line.Amount,
				Currency:    string(line.Currency),
				Proration:   line.Proration,
			}
			if line.Period != nil && line.Period.End > 0 {
				il.PeriodEnd = time.Unix(line.Period.End, 0)
			}
			preview.Lines = append(preview.Lines, il)
		}
	}
	return preview, nil
}

// ConstructEvent verifies the webhook signature and normalizes the processor
// payload into a provider-neutral event. API version drift on the payload is
// tolerated; only the signature is load bearing.
func (p *StripeProvider) ConstructEvent(payload []byte, signature string) (*Event, error) {
	se, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	return normalizeEvent(&se)
}

// normalizeEvent maps a verified Stripe event onto the provider-neutral
// Event. Types outside the consumed set come back as EventIgnored so the
// endpoint can acknowledge them.
func normalizeEvent(se *stripe.Event) (*Event, error) {
	ev := &Event{
		Kind:         EventIgnored,
		ProviderType: string(se.Type),
	}

	switch string(se.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(se.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session payload: %w", err)
		}
		ev.Kind = EventCheckoutCompleted
		ev.CheckoutSessionID = sess.ID
		if sess.Customer != nil {
			ev.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.SubscriptionID = sess.Subscription.ID
		}
		ev.CustomerEmail = sess.CustomerEmail
		if sess.CustomerDetails != nil {
			if sess.CustomerDetails.Email != "" {
				ev.CustomerEmail = sess.CustomerDetails.Email
			}
			ev.CustomerName = sess.CustomerDetails.Name
		}

	case "customer.subscription.updated":
		sub, err := decodeSubscription(se.Data.Raw)
		if err != nil {
			return nil, err
		}
		ev.Kind = EventSubscriptionUpdated
		ev.SubscriptionID = sub.ID
		ev.CustomerID = sub.CustomerID
		ev.Subscription = sub

	case "customer.subscription.deleted":
		sub, err := decodeSubscription(se.Data.Raw)
		if err != nil {
			return nil, err
		}
		ev.Kind = EventSubscriptionDeleted
		ev.SubscriptionID = sub.ID
		ev.CustomerID = sub.CustomerID
		ev.Subscription = sub

	case "invoice.paid", "invoice.payment_succeeded":
		if err := fillFromInvoice(ev, se.Data.Raw); err != nil {
			return nil, err
		}
		ev.Kind = EventInvoicePaid

	case "invoice.payment_failed":
		if err := fillFromInvoice(ev, se.Data.Raw); err != nil {
			return nil, err
		}
		ev.Kind = EventInvoicePaymentFailed

	case "customer.created", "customer.updated", "customer.deleted":
		var cust stripe.Customer
		if err := json.Unmarshal(se.Data.Raw, &cust); err != nil {
			return nil, fmt.Errorf("decode customer payload: %w", err)
		}
		switch string(se.Type) {
		case "customer.created":
			ev.Kind = EventCustomerCreated
		case "customer.updated":
			ev.Kind = EventCustomerUpdated
		default:
			ev.Kind = EventCustomerDeleted
		}
		ev.CustomerID = cust.ID
		ev.CustomerEmail = cust.Email
		ev.CustomerName = cust.Name

	default:
		if strings.HasPrefix(string(se.Type), "subscription_schedule.") {
			ev.Kind = EventScheduleChanged
		}
	}

	return ev, nil
}

func decodeSubscription(raw json.RawMessage) (*Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription payload: %w", err)
	}
	return convertSubscription(&sub), nil
}

func fillFromInvoice(ev *Event, raw json.RawMessage) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return fmt.Errorf("decode invoice payload: %w", err)
	}
	if inv.Customer != nil {
		ev.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		ev.SubscriptionID = inv.Subscription.ID
	}
	ev.CustomerEmail = inv.CustomerEmail
	return nil
}

func convertPrice(pr *stripe.Price) *Price {
	out := &Price{
		ID:         pr.ID,
		UnitAmount: pr.UnitAmount,
		Currency:   string(pr.Currency),
	}
	if pr.Product != nil {
		out.ProductID = pr.Product.ID
	}
	return out
}

func convertCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		ClientToken:   sess.ClientSecret,
		Status:        string(sess.Status),
		CustomerEmail: sess.CustomerEmail,
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	return out
}

func convertSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		out.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0)
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			si := SubscriptionItem{ID: item.ID}
			if item.Price != nil {
				si.PriceID = item.Price.ID
				if item.Price.Product != nil {
					si.ProductID = item.Price.Product.ID
				}
			}
			out.Items = append(out.Items, si)
		}
	}
	return out
}
