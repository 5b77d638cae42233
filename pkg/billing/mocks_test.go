package billing

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockProvider is a mock implementation of Provider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ActivePrice(ctx context.Context, productID string) (*Price, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Price), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *mockProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *mockProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

func (m *mockProvider) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*Subscription, string, error) {
	args := m.Called(ctx, subscriptionID, newPriceID)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*Subscription), args.String(1), args.Error(2)
}

func (m *mockProvider) CreateDowngradeSchedule(ctx context.Context, sub *Subscription, newPriceID string) error {
	args := m.Called(ctx, sub, newPriceID)
	return args.Error(0)
}

func (m *mockProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) PreviewPriceChange(ctx context.Context, sub *Subscription, newPriceID string) (*InvoicePreview, error) {
	args := m.Called(ctx, sub, newPriceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*InvoicePreview), args.Error(1)
}

func (m *mockProvider) ConstructEvent(payload []byte, signature string) (*Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Event), args.Error(1)
}
