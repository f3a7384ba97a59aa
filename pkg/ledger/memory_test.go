package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/billing/pkg/ledger"
)

func TestMemoryLedger_ReferenceIdempotency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("same grant reference applies once", func(t *testing.T) {
		t.Parallel()
		l := ledger.NewMemoryLedger()
		user := uuid.New()

		require.NoError(t, l.AddSubscriptionCredits(ctx, user, 500, ledger.InvoiceRef("in_1"), "cycle grant"))
		require.NoError(t, l.AddSubscriptionCredits(ctx, user, 500, ledger.InvoiceRef("in_1"), "redelivered"))

		b, err := l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(500), b.SubscriptionCredits)
	})

	t.Run("same clawback reference applies once", func(t *testing.T) {
		t.Parallel()
		l := ledger.NewMemoryLedger()
		user := uuid.New()
		l.SetBalance(user, 300, 100)

		res, err := l.ClawbackCredits(ctx, user, 200, "dispute hold", ledger.DisputeRef("dp_1"), ledger.PoolAuto)
		require.NoError(t, err)
		assert.Equal(t, int64(200), res.CreditsClawedBack)

		res, err = l.ClawbackCredits(ctx, user, 200, "dispute hold", ledger.DisputeRef("dp_1"), ledger.PoolAuto)
		require.NoError(t, err)
		assert.Zero(t, res.CreditsClawedBack)

		b, err := l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(200), b.Total())
	})
}

func TestMemoryLedger_AutoPoolPrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := ledger.NewMemoryLedger()
	user := uuid.New()
	l.SetBalance(user, 150, 100)

	// auto drains the subscription pool before touching purchased credits.
	res, err := l.ClawbackCredits(ctx, user, 200, "dispute hold", ledger.DisputeRef("dp_2"), ledger.PoolAuto)
	require.NoError(t, err)

	assert.Equal(t, int64(150), res.SubscriptionClawed)
	assert.Equal(t, int64(50), res.PurchasedClawed)
	assert.Equal(t, int64(0), res.NewSubscriptionBalance)
	assert.Equal(t, int64(50), res.NewPurchasedBalance)
}

func TestMemoryLedger_ClawbackFromTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("grant then reverse round-trips the balance", func(t *testing.T) {
		t.Parallel()
		l := ledger.NewMemoryLedger()
		user := uuid.New()
		l.SetBalance(user, 40, 10)

		ref := ledger.InvoiceRef("in_42")
		require.NoError(t, l.AddSubscriptionCredits(ctx, user, 500, ref, "cycle grant"))

		res, err := l.ClawbackFromTransaction(ctx, user, ref, "charge refunded")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, int64(500), res.CreditsClawedBack)
		assert.Equal(t, int64(500), res.SubscriptionClawed)

		b, err := l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(40), b.SubscriptionCredits)
		assert.Equal(t, int64(10), b.PurchasedCredits)
	})

	t.Run("reverses no more than the original grant", func(t *testing.T) {
		t.Parallel()
		l := ledger.NewMemoryLedger()
		user := uuid.New()

		ref := ledger.PaymentIntentRef("pi_9")
		require.NoError(t, l.AddPurchasedCredits(ctx, user, 100, ref, "credit pack"))

		// Partial usage elsewhere leaves less than the grant.
		_, err := l.ClawbackCredits(ctx, user, 30, "usage", "usage_1", ledger.PoolPurchased)
		require.NoError(t, err)

		res, err := l.ClawbackFromTransaction(ctx, user, ref, "pack refunded")
		require.NoError(t, err)
		assert.Equal(t, int64(70), res.CreditsClawedBack)

		b, err := l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Zero(t, b.Total())
	})

	t.Run("unknown reference reports ErrTransactionNotFound", func(t *testing.T) {
		t.Parallel()
		l := ledger.NewMemoryLedger()

		_, err := l.ClawbackFromTransaction(ctx, uuid.New(), ledger.InvoiceRef("in_missing"), "refund")
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})

	t.Run("reversal is idempotent", func(t *testing.T) {
		t.Parallel()
		l := ledger.NewMemoryLedger()
		user := uuid.New()

		ref := ledger.InvoiceRef("in_7")
		require.NoError(t, l.AddSubscriptionCredits(ctx, user, 200, ref, "cycle grant"))

		_, err := l.ClawbackFromTransaction(ctx, user, ref, "refund")
		require.NoError(t, err)
		res, err := l.ClawbackFromTransaction(ctx, user, ref, "refund redelivered")
		require.NoError(t, err)
		assert.Zero(t, res.CreditsClawedBack)

		b, err := l.Balance(ctx, user)
		require.NoError(t, err)
		assert.Zero(t, b.Total())
	})
}

func TestRefHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invoice_in_123", ledger.InvoiceRef("in_123"))
	assert.Equal(t, "session_cs_123", ledger.SessionRef("cs_123"))
	assert.Equal(t, "dispute_dp_123", ledger.DisputeRef("dp_123"))
	assert.Equal(t, "adjust_42", ledger.AdjustmentRef("42"))

	// Stripe payment intent ids already carry the prefix.
	assert.Equal(t, "pi_123", ledger.PaymentIntentRef("pi_123"))
	assert.Equal(t, "pi_123", ledger.PaymentIntentRef("123"))
}
