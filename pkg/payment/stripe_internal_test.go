package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v79"
)

func rawEvent(t *testing.T, id, typ string, obj any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestTranslateEvent(t *testing.T) {
	t.Parallel()
	p := &StripeProvider{}

	t.Run("checkout session completed", func(t *testing.T) {
		t.Parallel()
		ev := rawEvent(t, "evt_1", "checkout.session.completed", map[string]any{
			"id":             "cs_123",
			"mode":           "payment",
			"customer":       map[string]any{"id": "cus_1"},
			"payment_intent": map[string]any{"id": "pi_1"},
			"metadata":       map[string]string{"credits": "500"},
		})

		out, err := p.translateEvent(ev)
		require.NoError(t, err)

		assert.Equal(t, "evt_1", out.ID)
		assert.Equal(t, EventCheckoutSessionCompleted, out.Type)
		require.NotNil(t, out.Session)
		assert.Equal(t, "cs_123", out.Session.ID)
		assert.Equal(t, ModePayment, out.Session.Mode)
		assert.Equal(t, "cus_1", out.Session.CustomerID)
		assert.Equal(t, "pi_1", out.Session.PaymentIntentID)
		assert.Equal(t, "500", out.Session.Metadata["credits"])
	})

	t.Run("charge refunded", func(t *testing.T) {
		t.Parallel()
		ev := rawEvent(t, "evt_2", "charge.refunded", map[string]any{
			"id":              "ch_1",
			"customer":        map[string]any{"id": "cus_1"},
			"invoice":         map[string]any{"id": "in_1"},
			"amount_refunded": 1500,
		})

		out, err := p.translateEvent(ev)
		require.NoError(t, err)

		require.NotNil(t, out.Charge)
		assert.Equal(t, "ch_1", out.Charge.ID)
		assert.Equal(t, "in_1", out.Charge.InvoiceID)
		assert.Equal(t, int64(1500), out.Charge.AmountRefunded)
	})

	t.Run("dispute created", func(t *testing.T) {
		t.Parallel()
		ev := rawEvent(t, "evt_3", "charge.dispute.created", map[string]any{
			"id":     "dp_1",
			"charge": map[string]any{"id": "ch_1"},
			"amount": 2000,
			"status": "needs_response",
		})

		out, err := p.translateEvent(ev)
		require.NoError(t, err)

		require.NotNil(t, out.Dispute)
		assert.Equal(t, "dp_1", out.Dispute.ID)
		assert.Equal(t, "ch_1", out.Dispute.ChargeID)
		assert.Equal(t, int64(2000), out.Dispute.AmountCents)
	})

	t.Run("subscription updated extracts price and period", func(t *testing.T) {
		t.Parallel()
		ev := rawEvent(t, "evt_4", "customer.subscription.updated", map[string]any{
			"id":                   "sub_1",
			"status":               "active",
			"customer":             map[string]any{"id": "cus_1"},
			"current_period_start": 1700000000,
			"current_period_end":   1702592000,
			"cancel_at_period_end": true,
			"items": map[string]any{
				"data": []any{
					map[string]any{"price": map[string]any{"id": "price_pro_monthly"}},
				},
			},
		})

		out, err := p.translateEvent(ev)
		require.NoError(t, err)

		require.NotNil(t, out.Subscription)
		assert.Equal(t, "sub_1", out.Subscription.ID)
		assert.Equal(t, SubscriptionActive, out.Subscription.Status)
		assert.Equal(t, "price_pro_monthly", out.Subscription.PriceID)
		assert.Equal(t, int64(1700000000), out.Subscription.CurrentPeriodStart)
		assert.Equal(t, int64(1702592000), out.Subscription.CurrentPeriodEnd)
		assert.True(t, out.Subscription.CancelAtPeriodEnd)
	})

	t.Run("unconsumed event keeps only id and type", func(t *testing.T) {
		t.Parallel()
		ev := rawEvent(t, "evt_5", "payment_intent.created", map[string]any{"id": "pi_1"})

		out, err := p.translateEvent(ev)
		require.NoError(t, err)

		assert.Equal(t, EventType("payment_intent.created"), out.Type)
		assert.Nil(t, out.Session)
		assert.Nil(t, out.Charge)
		assert.Nil(t, out.Subscription)
	})
}

func TestNormalizeError(t *testing.T) {
	t.Parallel()

	t.Run("404 maps to ErrNotFound", func(t *testing.T) {
		t.Parallel()
		err := normalizeError(&stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "no such subscription"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("resource_missing maps to ErrNotFound", func(t *testing.T) {
		t.Parallel()
		err := normalizeError(&stripe.Error{Code: stripe.ErrorCodeResourceMissing})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection reset")
		assert.Equal(t, cause, normalizeError(cause))
	})
}
