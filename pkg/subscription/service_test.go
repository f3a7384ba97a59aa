package subscription_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/billing/pkg/payment"
	"github.com/pagelift/billing/pkg/subscription"
)

func newTestService(t *testing.T) (*subscription.Service, *subscription.MemoryStore, *subscription.MemoryProfileStore) {
	t.Helper()

	catalog, err := subscription.NewCatalog(testPlans())
	require.NoError(t, err)

	subs := subscription.NewMemoryStore()
	profiles := subscription.NewMemoryProfileStore()
	svc := subscription.NewService(catalog, subs, profiles, slog.Default())
	return svc, subs, profiles
}

func seedProfile(profiles *subscription.MemoryProfileStore, customerID string) uuid.UUID {
	userID := uuid.New()
	profiles.Put(&subscription.Profile{
		UserID:           userID,
		Email:            "user@example.com",
		StripeCustomerID: &customerID,
	})
	return userID
}

func processorSub(id string) *payment.Subscription {
	return &payment.Subscription{
		ID:                 id,
		CustomerID:         "cus_1",
		Status:             payment.SubscriptionActive,
		PriceID:            "price_pro_monthly",
		CurrentPeriodStart: time.Now().Add(-time.Hour).Unix(),
		CurrentPeriodEnd:   time.Now().Add(29 * 24 * time.Hour).Unix(),
	}
}

func TestService_SyncFromProcessor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("upserts subscription and mirrors profile state", func(t *testing.T) {
		t.Parallel()
		svc, subs, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")

		require.NoError(t, svc.SyncFromProcessor(ctx, userID, processorSub("sub_1")))

		stored, err := subs.GetByProviderID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, stored.Status)
		assert.Equal(t, "price_pro_monthly", stored.PriceID)
		assert.Equal(t, userID, stored.UserID)

		p, err := profiles.Get(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, p.SubscriptionTier)
		// Tier mirrors the plan key, not the display name.
		assert.Equal(t, "pro", *p.SubscriptionTier)
		require.NotNil(t, p.SubscriptionStatus)
		assert.Equal(t, subscription.StatusActive, *p.SubscriptionStatus)
	})

	t.Run("unknown price id fails loudly", func(t *testing.T) {
		t.Parallel()
		svc, _, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")

		psub := processorSub("sub_2")
		psub.PriceID = "price_from_deleted_plan"

		err := svc.SyncFromProcessor(ctx, userID, psub)
		assert.ErrorIs(t, err, subscription.ErrUnknownPriceID)
	})

	t.Run("missing period bounds fail loudly", func(t *testing.T) {
		t.Parallel()
		svc, _, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")

		psub := processorSub("sub_3")
		psub.CurrentPeriodEnd = 0

		err := svc.SyncFromProcessor(ctx, userID, psub)
		assert.ErrorIs(t, err, subscription.ErrInvalidPeriod)
	})

	t.Run("nil processor subscription is rejected", func(t *testing.T) {
		t.Parallel()
		svc, _, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")

		err := svc.SyncFromProcessor(ctx, userID, nil)
		assert.ErrorIs(t, err, subscription.ErrMissingProcessor)
	})

	t.Run("canceled_at is carried over", func(t *testing.T) {
		t.Parallel()
		svc, subs, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")

		psub := processorSub("sub_4")
		psub.Status = payment.SubscriptionCanceled
		psub.CanceledAt = time.Now().Unix()

		require.NoError(t, svc.SyncFromProcessor(ctx, userID, psub))

		stored, err := subs.GetByProviderID(ctx, "sub_4")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, stored.Status)
		assert.NotNil(t, stored.CanceledAt)
	})

	t.Run("unrecognized processor status maps to incomplete", func(t *testing.T) {
		t.Parallel()
		svc, subs, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")

		psub := processorSub("sub_5")
		psub.Status = payment.SubscriptionStatus("incomplete_expired")

		require.NoError(t, svc.SyncFromProcessor(ctx, userID, psub))

		stored, err := subs.GetByProviderID(ctx, "sub_5")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusIncomplete, stored.Status)
	})
}

func TestService_MarkCanceled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, subs, profiles := newTestService(t)
	userID := seedProfile(profiles, "cus_1")
	require.NoError(t, svc.SyncFromProcessor(ctx, userID, processorSub("sub_1")))

	require.NoError(t, svc.MarkCanceled(ctx, userID, "sub_1"))

	stored, err := subs.GetByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, stored.Status)
	require.NotNil(t, stored.CanceledAt)

	p, err := profiles.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, p.SubscriptionStatus)
	assert.Equal(t, subscription.StatusCanceled, *p.SubscriptionStatus)
	assert.Nil(t, p.SubscriptionTier)
}

func TestService_UpdatePeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("extends only the window", func(t *testing.T) {
		t.Parallel()
		svc, subs, profiles := newTestService(t)
		userID := seedProfile(profiles, "cus_1")
		require.NoError(t, svc.SyncFromProcessor(ctx, userID, processorSub("sub_1")))

		start := time.Now().UTC().Truncate(time.Second)
		end := start.Add(30 * 24 * time.Hour)
		require.NoError(t, svc.UpdatePeriod(ctx, "sub_1", start, end))

		stored, err := subs.GetByProviderID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, end, stored.CurrentPeriodEnd)
		assert.Equal(t, subscription.StatusActive, stored.Status)
	})

	t.Run("rejects inverted windows", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)

		now := time.Now()
		err := svc.UpdatePeriod(ctx, "sub_1", now, now.Add(-time.Hour))
		assert.ErrorIs(t, err, subscription.ErrInvalidPeriod)
	})
}
