package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saasfoundry/billingsync/pkg/entitlement"
)

func testConfig() Config {
	return Config{
		BasicProductID:   "prod_basic",
		PremiumProductID: "prod_premium",
		ReturnURL:        "https://app.example.com/",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedRecord(t *testing.T, store entitlement.Store, level entitlement.Level, externalID string) *entitlement.Record {
	t.Helper()

	rec := &entitlement.Record{
		ID:                 uuid.New(),
		Email:              fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Level:              level,
		ExternalCustomerID: externalID,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec
}

func TestNewService(t *testing.T) {
	t.Parallel()

	t.Run("panics on nil provider", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			NewService(testConfig(), nil, entitlement.NewMemoryStore())
		})
	})

	t.Run("panics on nil store", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			NewService(testConfig(), &mockProvider{}, nil)
		})
	})

	t.Run("creates service with defaults", func(t *testing.T) {
		t.Parallel()

		svc := NewService(testConfig(), &mockProvider{}, entitlement.NewMemoryStore())
		require.NotNil(t, svc)
		assert.NotNil(t, svc.limiter)
		assert.NotNil(t, svc.prices)
		assert.NotNil(t, svc.identities)
	})
}

func TestService_StartCheckout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns session id and client token", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		provider.On("ActivePrice", ctx, "prod_premium").
			Return(&Price{ID: "price_123", ProductID: "prod_premium", UnitAmount: 2900, Currency: "usd"}, nil)
		provider.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p CheckoutParams) bool {
			return p.PriceID == "price_123" &&
				p.ReturnURL == "https://app.example.com/billing/return?session_id={CHECKOUT_SESSION_ID}"
		})).Return(&CheckoutSession{ID: "cs_1", ClientToken: "cs_1_secret"}, nil)

		svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

		res := svc.StartCheckout(ctx, ProductPremium, Identity{ID: uuid.New(), Email: "a@example.com"})
		require.True(t, res.Success)
		assert.Equal(t, "cs_1", res.Data.SessionID)
		assert.Equal(t, "cs_1_secret", res.Data.ClientToken)
		provider.AssertExpectations(t)
	})

	t.Run("refuses sixth attempt within the window", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		provider.On("ActivePrice", ctx, "prod_basic").
			Return(&Price{ID: "price_b", ProductID: "prod_basic"}, nil)
		provider.On("CreateCheckoutSession", ctx, mock.Anything).
			Return(&CheckoutSession{ID: "cs_x", ClientToken: "tok"}, nil)

		svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))
		user := Identity{ID: uuid.New(), Email: "b@example.com"}

		for i := 0; i < 5; i++ {
			res := svc.StartCheckout(ctx, ProductBasic, user)
			require.True(t, res.Success, "attempt %d", i+1)
		}

		res := svc.StartCheckout(ctx, ProductBasic, user)
		require.False(t, res.Success)
		assert.Equal(t, ErrRateLimited.Error(), res.Error)
		provider.AssertNumberOfCalls(t, "CreateCheckoutSession", 5)
	})

	t.Run("rate limit is per identity", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		provider.On("ActivePrice", ctx, "prod_basic").
			Return(&Price{ID: "price_b", ProductID: "prod_basic"}, nil)
		provider.On("CreateCheckoutSession", ctx, mock.Anything).
			Return(&CheckoutSession{ID: "cs_x", ClientToken: "tok"}, nil)

		svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))
		first := Identity{ID: uuid.New()}

		for i := 0; i < 5; i++ {
			require.True(t, svc.StartCheckout(ctx, ProductBasic, first).Success)
		}
		require.False(t, svc.StartCheckout(ctx, ProductBasic, first).Success)

		other := Identity{ID: uuid.New()}
		assert.True(t, svc.StartCheckout(ctx, ProductBasic, other).Success)
	})

	t.Run("refuses unknown product key", func(t *testing.T) {
		t.Parallel()

		svc := NewService(testConfig(), &mockProvider{}, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

		res := svc.StartCheckout(ctx, ProductKey("enterprise"), Identity{ID: uuid.New()})
		require.False(t, res.Success)
		assert.Equal(t, ErrUnknownProduct.Error(), res.Error)
	})

	t.Run("refuses unconfigured product without calling provider", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		cfg := testConfig()
		cfg.PremiumProductID = ""
		svc := NewService(cfg, provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

		res := svc.StartCheckout(ctx, ProductPremium, Identity{ID: uuid.New()})
		require.False(t, res.Success)
		assert.Equal(t, ErrProductNotConfigured.Error(), res.Error)
		provider.AssertNotCalled(t, "ActivePrice", mock.Anything, mock.Anything)
	})

	t.Run("collapses provider failures into generic message", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		provider.On("ActivePrice", ctx, "prod_premium").
			Return(nil, errors.New("stripe: api_key_expired"))

		svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

		res := svc.StartCheckout(ctx, ProductPremium, Identity{ID: uuid.New()})
		require.False(t, res.Success)
		assert.Equal(t, "billing operation failed", res.Error)
		assert.NotContains(t, res.Error, "api_key")
	})
}

func TestService_GetCheckoutStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	provider := &mockProvider{}
	provider.On("GetCheckoutSession", ctx, "cs_1").
		Return(&CheckoutSession{ID: "cs_1", Status: "complete", CustomerEmail: "a@example.com"}, nil)

	svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

	res := svc.GetCheckoutStatus(ctx, "cs_1")
	require.True(t, res.Success)
	assert.Equal(t, "complete", res.Data.Status)
	assert.Equal(t, "a@example.com", res.Data.CustomerEmail)
}

func TestService_GetActiveSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("nil data without billing relationship", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelFree, "")

		svc := NewService(testConfig(), &mockProvider{}, store, WithLogger(quietLogger()))

		res := svc.GetActiveSubscription(ctx, rec.ID)
		require.True(t, res.Success)
		assert.Nil(t, res.Data)
	})

	t.Run("nil data with no active subscriptions", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelBasic, "cus_1")

		provider := &mockProvider{}
		provider.On("ListActiveSubscriptions", ctx, "cus_1").Return([]*Subscription{}, nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.GetActiveSubscription(ctx, rec.ID)
		require.True(t, res.Success)
		assert.Nil(t, res.Data)
	})

	t.Run("reports a trialing subscription", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelBasic, "cus_t")

		provider := &mockProvider{}
		provider.On("ListActiveSubscriptions", ctx, "cus_t").Return([]*Subscription{
			{
				ID:     "sub_trial",
				Status: SubscriptionStatusTrialing,
				Items:  []SubscriptionItem{{PriceID: "price_b", ProductID: "prod_basic"}},
			},
		}, nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.GetActiveSubscription(ctx, rec.ID)
		require.True(t, res.Success)
		require.NotNil(t, res.Data)
		assert.Equal(t, string(SubscriptionStatusTrialing), res.Data.Status)
		assert.Equal(t, entitlement.LevelBasic, res.Data.Level)
	})

	t.Run("maps items to the highest level", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelPremium, "cus_2")
		periodEnd := time.Now().Add(20 * 24 * time.Hour).Truncate(time.Second)

		provider := &mockProvider{}
		provider.On("ListActiveSubscriptions", ctx, "cus_2").Return([]*Subscription{
			{
				ID:               "sub_1",
				CustomerID:       "cus_2",
				Status:           SubscriptionStatusActive,
				CurrentPeriodEnd: periodEnd,
				Items: []SubscriptionItem{
					{ID: "si_1", PriceID: "price_p", ProductID: "prod_premium"},
				},
			},
		}, nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.GetActiveSubscription(ctx, rec.ID)
		require.True(t, res.Success)
		require.NotNil(t, res.Data)
		assert.Equal(t, entitlement.LevelPremium, res.Data.Level)
		assert.Equal(t, "price_p", res.Data.PriceID)
		assert.Equal(t, periodEnd, res.Data.CurrentPeriodEnd)
	})
}

func TestService_Upgrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("writes new level optimistically", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelBasic, "cus_1")

		provider := &mockProvider{}
		provider.On("ChangeSubscriptionPrice", ctx, "sub_1", "price_p").Return(&Subscription{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     SubscriptionStatusActive,
			Items:      []SubscriptionItem{{ID: "si_1", PriceID: "price_p", ProductID: "prod_premium"}},
		}, "", nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.Upgrade(ctx, "sub_1", "price_p")
		require.True(t, res.Success)
		assert.Equal(t, entitlement.LevelPremium, res.Data.Level)
		assert.False(t, res.Data.PendingConfirmation)

		updated, err := store.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.LevelPremium, updated.Level)
	})

	t.Run("surfaces pending payment confirmation", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		seedRecord(t, store, entitlement.LevelBasic, "cus_1")

		provider := &mockProvider{}
		provider.On("ChangeSubscriptionPrice", ctx, "sub_1", "price_p").Return(&Subscription{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     SubscriptionStatusActive,
			Items:      []SubscriptionItem{{ProductID: "prod_premium"}},
		}, "pi_secret_abc", nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.Upgrade(ctx, "sub_1", "price_p")
		require.True(t, res.Success)
		assert.True(t, res.Data.PendingConfirmation)
		assert.Equal(t, "pi_secret_abc", res.Data.ConfirmationSecret)
	})

	t.Run("succeeds even when no local record matches", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		provider.On("ChangeSubscriptionPrice", ctx, "sub_1", "price_p").Return(&Subscription{
			ID:         "sub_1",
			CustomerID: "cus_unknown",
			Items:      []SubscriptionItem{{ProductID: "prod_premium"}},
		}, "", nil)

		svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

		res := svc.Upgrade(ctx, "sub_1", "price_p")
		assert.True(t, res.Success)
	})
}

func TestService_ScheduleDowngrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("defers to the period boundary without local write", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelPremium, "cus_1")
		periodEnd := time.Now().Add(10 * 24 * time.Hour).Truncate(time.Second)

		sub := &Subscription{
			ID:                 "sub_1",
			CustomerID:         "cus_1",
			Status:             SubscriptionStatusActive,
			CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
			CurrentPeriodEnd:   periodEnd,
			Items:              []SubscriptionItem{{ID: "si_1", PriceID: "price_p", ProductID: "prod_premium"}},
		}

		provider := &mockProvider{}
		provider.On("GetSubscription", ctx, "sub_1").Return(sub, nil)
		provider.On("CreateDowngradeSchedule", ctx, sub, "price_b").Return(nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.ScheduleDowngrade(ctx, "sub_1", "price_b")
		require.True(t, res.Success)
		assert.Equal(t, periodEnd, res.Data.EffectiveAt)

		// Level stays until the boundary event arrives.
		current, err := store.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.LevelPremium, current.Level)
	})

	t.Run("refuses subscription without period boundary", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		provider.On("GetSubscription", ctx, "sub_1").Return(&Subscription{ID: "sub_1"}, nil)

		svc := NewService(testConfig(), provider, entitlement.NewMemoryStore(), WithLogger(quietLogger()))

		res := svc.ScheduleDowngrade(ctx, "sub_1", "price_b")
		require.False(t, res.Success)
		assert.Equal(t, ErrNoPeriodBoundary.Error(), res.Error)
		provider.AssertNotCalled(t, "CreateDowngradeSchedule", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("refuses free level", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelFree, "cus_1")

		svc := NewService(testConfig(), &mockProvider{}, store, WithLogger(quietLogger()))

		res := svc.Cancel(ctx, "cus_1", Identity{ID: rec.ID})
		require.False(t, res.Success)
		assert.Equal(t, ErrNotSubscribed.Error(), res.Error)
	})

	t.Run("refuses mismatched customer reference", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelPremium, "cus_1")

		provider := &mockProvider{}
		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.Cancel(ctx, "cus_other", Identity{ID: rec.ID})
		require.False(t, res.Success)
		assert.Equal(t, ErrCustomerMismatch.Error(), res.Error)
		provider.AssertNotCalled(t, "ListActiveSubscriptions", mock.Anything, mock.Anything)

		current, err := store.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.LevelPremium, current.Level)
	})

	t.Run("cancels all subscriptions and keeps access until period end", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelPremium, "cus_1")

		near := time.Now().Add(5 * 24 * time.Hour).Truncate(time.Second)
		far := time.Now().Add(25 * 24 * time.Hour).Truncate(time.Second)

		provider := &mockProvider{}
		provider.On("ListActiveSubscriptions", ctx, "cus_1").Return([]*Subscription{
			{ID: "sub_1", CurrentPeriodEnd: near},
			{ID: "sub_2", CurrentPeriodEnd: far},
		}, nil)
		provider.On("CancelAtPeriodEnd", ctx, "sub_1").Return(nil)
		provider.On("CancelAtPeriodEnd", ctx, "sub_2").Return(nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.Cancel(ctx, "cus_1", Identity{ID: rec.ID})
		require.True(t, res.Success)
		assert.Equal(t, 2, res.Data.SubscriptionsCanceled)
		assert.Equal(t, far, res.Data.AccessUntil)

		current, err := store.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.LevelFree, current.Level)
		provider.AssertExpectations(t)
	})

	t.Run("trialing subscription is cancelable", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelPremium, "cus_1")
		trialEnd := time.Now().Add(10 * 24 * time.Hour).Truncate(time.Second)

		provider := &mockProvider{}
		provider.On("ListActiveSubscriptions", ctx, "cus_1").Return([]*Subscription{
			{ID: "sub_trial", Status: SubscriptionStatusTrialing, CurrentPeriodEnd: trialEnd},
		}, nil)
		provider.On("CancelAtPeriodEnd", ctx, "sub_trial").Return(nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.Cancel(ctx, "cus_1", Identity{ID: rec.ID})
		require.True(t, res.Success)
		assert.Equal(t, 1, res.Data.SubscriptionsCanceled)
		assert.Equal(t, trialEnd, res.Data.AccessUntil)
		provider.AssertCalled(t, "CancelAtPeriodEnd", ctx, "sub_trial")

		current, err := store.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.LevelFree, current.Level)
	})

	t.Run("degrades to free even with zero subscriptions", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelBasic, "cus_1")

		provider := &mockProvider{}
		provider.On("ListActiveSubscriptions", ctx, "cus_1").Return([]*Subscription{}, nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.Cancel(ctx, "cus_1", Identity{ID: rec.ID})
		require.True(t, res.Success)
		assert.Equal(t, 0, res.Data.SubscriptionsCanceled)
		assert.True(t, res.Data.AccessUntil.IsZero())

		current, err := store.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.LevelFree, current.Level)
	})
}

func TestService_OpenBillingPortal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("refuses users without billing account", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelFree, "")

		svc := NewService(testConfig(), &mockProvider{}, store, WithLogger(quietLogger()))

		res := svc.OpenBillingPortal(ctx, rec.ID)
		require.False(t, res.Success)
		assert.Equal(t, ErrNoBillingAccount.Error(), res.Error)
	})

	t.Run("returns portal url", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		rec := seedRecord(t, store, entitlement.LevelPremium, "cus_1")

		provider := &mockProvider{}
		provider.On("CreatePortalSession", ctx, "cus_1", "https://app.example.com/settings/billing").
			Return("https://billing.example.com/p/abc", nil)

		svc := NewService(testConfig(), provider, store, WithLogger(quietLogger()))

		res := svc.OpenBillingPortal(ctx, rec.ID)
		require.True(t, res.Success)
		assert.Equal(t, "https://billing.example.com/p/abc", res.Data.URL)
	})
}
