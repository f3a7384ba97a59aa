package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/billing/pkg/billing"
	"github.com/pagelift/billing/pkg/payment"
	"github.com/pagelift/billing/pkg/reconcile"
	"github.com/pagelift/billing/pkg/subscription"
)

type mockProvider struct {
	getSubscription func(ctx context.Context, id string) (*payment.Subscription, error)
	getEvent        func(ctx context.Context, id string) (*payment.Event, error)
}

func (m *mockProvider) VerifyWebhook([]byte, string) (*payment.Event, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) GetSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	if m.getSubscription == nil {
		return nil, payment.ErrNotFound
	}
	return m.getSubscription(ctx, id)
}

func (m *mockProvider) GetCharge(context.Context, string) (*payment.Charge, error) {
	return nil, payment.ErrNotFound
}

func (m *mockProvider) GetEvent(ctx context.Context, id string) (*payment.Event, error) {
	if m.getEvent == nil {
		return nil, payment.ErrNotFound
	}
	return m.getEvent(ctx, id)
}

type fixture struct {
	jobs     *reconcile.Jobs
	runs     *reconcile.MemoryRunStore
	subs     *subscription.MemoryStore
	profiles *subscription.MemoryProfileStore
	webhooks *billing.MemoryWebhookEventStore
	provider *mockProvider
	registry *billing.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := subscription.NewCatalog([]subscription.Plan{
		{Key: "starter", Name: "Starter", CreditsPerCycle: 200, PriceIDs: []string{"price_starter"}},
	})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		runs:     reconcile.NewMemoryRunStore(),
		subs:     subscription.NewMemoryStore(),
		profiles: subscription.NewMemoryProfileStore(),
		webhooks: billing.NewMemoryWebhookEventStore(),
		provider: &mockProvider{},
		registry: billing.NewRegistry(),
	}

	svc := subscription.NewService(catalog, f.subs, f.profiles, log)
	dispatcher := billing.NewDispatcher(f.registry, billing.NopDedupGuard{}, f.webhooks, log)

	f.jobs = reconcile.NewJobs(
		reconcile.Config{BatchSize: 40, DriftTolerance: time.Hour, MaxEventRetries: 3, RecoveryBatchSize: 50},
		f.runs, f.subs, svc, f.provider, dispatcher, f.webhooks, log)
	return f
}

func seedSubscription(t *testing.T, f *fixture, providerSubID string, status subscription.Status, periodEnd time.Time) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	cust := "cus_" + providerSubID
	f.profiles.Put(&subscription.Profile{UserID: userID, StripeCustomerID: &cust})
	require.NoError(t, f.subs.Upsert(context.Background(), &subscription.Subscription{
		UserID:             userID,
		ProviderSubID:      providerSubID,
		Status:             status,
		PriceID:            "price_starter",
		CurrentPeriodStart: periodEnd.Add(-30 * 24 * time.Hour),
		CurrentPeriodEnd:   periodEnd,
	}))
	return userID
}

func liveSub(id string, status payment.SubscriptionStatus, end time.Time) *payment.Subscription {
	return &payment.Subscription{
		ID:                 id,
		Status:             status,
		PriceID:            "price_starter",
		CurrentPeriodStart: end.Add(-30 * 24 * time.Hour).Unix(),
		CurrentPeriodEnd:   end.Unix(),
	}
}

func TestExpirationCheck(t *testing.T) {
	t.Parallel()

	t.Run("extends period when processor says still active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		expired := time.Now().Add(-48 * time.Hour).UTC()
		seedSubscription(t, f, "sub_1", subscription.StatusActive, expired)

		newEnd := time.Now().Add(28 * 24 * time.Hour).UTC().Truncate(time.Second)
		f.provider.getSubscription = func(_ context.Context, id string) (*payment.Subscription, error) {
			return liveSub(id, payment.SubscriptionActive, newEnd), nil
		}

		run, err := f.jobs.ExpirationCheck(ctx)
		require.NoError(t, err)

		sub, err := f.subs.GetByProviderID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.WithinDuration(t, newEnd, sub.CurrentPeriodEnd, time.Second)

		runs, err := f.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
		assert.Equal(t, reconcile.RunCompleted, runs[0].Status)
		assert.Equal(t, 1, runs[0].Processed)
		assert.Equal(t, 1, runs[0].Discrepancies)
		assert.Equal(t, 1, runs[0].Fixed)
		assert.Zero(t, runs[0].Failed)
		require.Len(t, runs[0].Notes, 1)
		assert.Contains(t, runs[0].Notes[0], "sub_1")
		assert.Contains(t, runs[0].Notes[0], "renewed at processor")
	})

	t.Run("cancels locally when processor has no record", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		expired := time.Now().Add(-48 * time.Hour).UTC()
		seedSubscription(t, f, "sub_gone", subscription.StatusActive, expired)

		f.provider.getSubscription = func(context.Context, string) (*payment.Subscription, error) {
			return nil, payment.ErrNotFound
		}

		_, err := f.jobs.ExpirationCheck(ctx)
		require.NoError(t, err)

		sub, err := f.subs.GetByProviderID(ctx, "sub_gone")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
	})

	t.Run("one failing item does not abort the rest", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		expired := time.Now().Add(-48 * time.Hour).UTC()
		seedSubscription(t, f, "sub_a", subscription.StatusActive, expired)
		seedSubscription(t, f, "sub_b", subscription.StatusActive, expired)

		newEnd := time.Now().Add(28 * 24 * time.Hour).UTC()
		f.provider.getSubscription = func(_ context.Context, id string) (*payment.Subscription, error) {
			if id == "sub_a" {
				return nil, errors.New("processor 500")
			}
			return liveSub(id, payment.SubscriptionActive, newEnd), nil
		}

		_, err := f.jobs.ExpirationCheck(ctx)
		require.NoError(t, err)

		runs, err := f.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 2, runs[0].Processed)
		assert.Equal(t, 1, runs[0].Failed)
		assert.Equal(t, 1, runs[0].Fixed)
	})
}

func TestFullReconciliation(t *testing.T) {
	t.Parallel()

	t.Run("no drift means no writes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		end := time.Now().Add(10 * 24 * time.Hour).UTC().Truncate(time.Second)
		seedSubscription(t, f, "sub_ok", subscription.StatusActive, end)

		f.provider.getSubscription = func(_ context.Context, id string) (*payment.Subscription, error) {
			return liveSub(id, payment.SubscriptionActive, end), nil
		}

		_, more, err := f.jobs.FullReconciliation(ctx, 0)
		require.NoError(t, err)
		assert.False(t, more)

		runs, err := f.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 1, runs[0].Processed)
		assert.Zero(t, runs[0].Discrepancies)
	})

	t.Run("period drift within tolerance is ignored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		end := time.Now().Add(10 * 24 * time.Hour).UTC()
		seedSubscription(t, f, "sub_skew", subscription.StatusActive, end)

		f.provider.getSubscription = func(_ context.Context, id string) (*payment.Subscription, error) {
			return liveSub(id, payment.SubscriptionActive, end.Add(30*time.Minute)), nil
		}

		_, _, err := f.jobs.FullReconciliation(ctx, 0)
		require.NoError(t, err)

		runs, err := f.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Zero(t, runs[0].Discrepancies)
	})

	t.Run("status drift triggers a full re-sync", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		end := time.Now().Add(10 * 24 * time.Hour).UTC()
		userID := seedSubscription(t, f, "sub_drift", subscription.StatusActive, end)

		f.provider.getSubscription = func(_ context.Context, id string) (*payment.Subscription, error) {
			return liveSub(id, payment.SubscriptionPastDue, end), nil
		}

		_, _, err := f.jobs.FullReconciliation(ctx, 0)
		require.NoError(t, err)

		sub, err := f.subs.GetByProviderID(ctx, "sub_drift")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, sub.Status)

		p, err := f.profiles.Get(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, p.SubscriptionStatus)
		assert.Equal(t, subscription.StatusPastDue, *p.SubscriptionStatus)

		runs, err := f.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 1, runs[0].Discrepancies)
		assert.Equal(t, 1, runs[0].Fixed)
		require.Len(t, runs[0].Notes, 1)
		assert.Contains(t, runs[0].Notes[0], "sub_drift")
		assert.Contains(t, runs[0].Notes[0], "drifted")
		assert.Contains(t, runs[0].Notes[0], string(subscription.StatusPastDue))
	})

	t.Run("missing at processor cancels locally", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		end := time.Now().Add(10 * 24 * time.Hour).UTC()
		seedSubscription(t, f, "sub_lost", subscription.StatusActive, end)

		f.provider.getSubscription = func(context.Context, string) (*payment.Subscription, error) {
			return nil, payment.ErrNotFound
		}

		_, _, err := f.jobs.FullReconciliation(ctx, 0)
		require.NoError(t, err)

		sub, err := f.subs.GetByProviderID(ctx, "sub_lost")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)

		runs, err := f.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 1, runs[0].Discrepancies)
		assert.Equal(t, 1, runs[0].Fixed)
	})

	t.Run("reports more batches when population exceeds batch size", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		end := time.Now().Add(10 * 24 * time.Hour).UTC().Truncate(time.Second)
		for i := 0; i < 3; i++ {
			seedSubscription(t, f, "sub_"+string(rune('a'+i)), subscription.StatusActive, end)
		}
		f.provider.getSubscription = func(_ context.Context, id string) (*payment.Subscription, error) {
			return liveSub(id, payment.SubscriptionActive, end), nil
		}

		small := reconcile.NewJobs(
			reconcile.Config{BatchSize: 2, DriftTolerance: time.Hour},
			f.runs, f.subs,
			subscription.NewService(mustCatalog(t), f.subs, f.profiles, slog.New(slog.NewTextHandler(io.Discard, nil))),
			f.provider, nil, nil,
			slog.New(slog.NewTextHandler(io.Discard, nil)))

		_, more, err := small.FullReconciliation(ctx, 0)
		require.NoError(t, err)
		assert.True(t, more)

		_, more, err = small.FullReconciliation(ctx, 2)
		require.NoError(t, err)
		assert.False(t, more)
	})
}

func mustCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()
	catalog, err := subscription.NewCatalog([]subscription.Plan{
		{Key: "starter", Name: "Starter", CreditsPerCycle: 200, PriceIDs: []string{"price_starter"}},
	})
	require.NoError(t, err)
	return catalog
}

func TestWebhookRecovery(t *testing.T) {
	t.Parallel()

	t.Run("replays failed events through the dispatcher", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		var handled []string
		f.registry.Register(payment.EventChargeRefunded, func(_ context.Context, ev *payment.Event) error {
			handled = append(handled, ev.ID)
			return nil
		})
		require.NoError(t, f.webhooks.RecordFailure(ctx, "evt_1", string(payment.EventChargeRefunded), true, errors.New("db down")))

		f.provider.getEvent = func(_ context.Context, id string) (*payment.Event, error) {
			return &payment.Event{ID: id, Type: payment.EventChargeRefunded}, nil
		}

		run, err := f.jobs.WebhookRecovery(ctx)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, []string{"evt_1"}, handled)

		rec, ok := f.webhooks.Get("evt_1")
		require.True(t, ok)
		assert.Equal(t, billing.WebhookCompleted, rec.Status)
	})

	t.Run("event gone at processor is retired", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.webhooks.RecordFailure(ctx, "evt_gone", string(payment.EventChargeRefunded), true, errors.New("db down")))

		f.provider.getEvent = func(context.Context, string) (*payment.Event, error) {
			return nil, payment.ErrNotFound
		}

		_, err := f.jobs.WebhookRecovery(ctx)
		require.NoError(t, err)

		rec, ok := f.webhooks.Get("evt_gone")
		require.True(t, ok)
		assert.Equal(t, billing.WebhookUnrecoverable, rec.Status)
	})

	t.Run("repeated failures exhaust the retry budget", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		f.registry.Register(payment.EventChargeRefunded, func(context.Context, *payment.Event) error {
			return errors.New("still broken")
		})
		require.NoError(t, f.webhooks.RecordFailure(ctx, "evt_stuck", string(payment.EventChargeRefunded), true, errors.New("db down")))
		f.provider.getEvent = func(_ context.Context, id string) (*payment.Event, error) {
			return &payment.Event{ID: id, Type: payment.EventChargeRefunded}, nil
		}

		// Two passes burn retries but leave the event eligible.
		for i := 0; i < 2; i++ {
			_, err := f.jobs.WebhookRecovery(ctx)
			require.NoError(t, err)
		}
		rec, ok := f.webhooks.Get("evt_stuck")
		require.True(t, ok)
		assert.Equal(t, 2, rec.RetryCount)
		assert.Equal(t, billing.WebhookFailed, rec.Status)

		// The third failure spends the budget and retires the event.
		_, err := f.jobs.WebhookRecovery(ctx)
		require.NoError(t, err)

		rec, ok = f.webhooks.Get("evt_stuck")
		require.True(t, ok)
		assert.Equal(t, 3, rec.RetryCount)
		assert.Equal(t, billing.WebhookUnrecoverable, rec.Status)

		// Nothing left to replay.
		remaining, err := f.webhooks.ListRecoverable(ctx, 3, 50)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("unrecoverable events are not replayed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.webhooks.RecordFailure(ctx, "evt_bad", string(payment.EventDisputeCreated), false, billing.ErrMissingChargeID))

		var fetched int
		f.provider.getEvent = func(_ context.Context, id string) (*payment.Event, error) {
			fetched++
			return &payment.Event{ID: id, Type: payment.EventDisputeCreated}, nil
		}

		_, err := f.jobs.WebhookRecovery(ctx)
		require.NoError(t, err)
		assert.Zero(t, fetched)
	})
}
