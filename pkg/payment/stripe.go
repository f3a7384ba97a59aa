package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeConfig holds configuration for the Stripe provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements Provider on the official Stripe SDK.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe-backed provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// VerifyWebhook validates the Stripe-Signature header and parses the
// payload into the local event schema.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	return p.translateEvent(&event)
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := p.api.Subscriptions.Get(id, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return translateSubscription(sub), nil
}

func (p *StripeProvider) GetCharge(ctx context.Context, id string) (*Charge, error) {
	ch, err := p.api.Charges.Get(id, &stripe.ChargeParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return translateCharge(ch), nil
}

func (p *StripeProvider) GetEvent(ctx context.Context, id string) (*Event, error) {
	event, err := p.api.Events.Get(id, &stripe.EventParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return p.translateEvent(event)
}

// translateEvent maps a Stripe event into the local schema. Event types
// this system does not consume come back with only ID and Type set; the
// dispatcher treats them as logged no-ops.
func (p *StripeProvider) translateEvent(event *stripe.Event) (*Event, error) {
	out := &Event{
		ID:   event.ID,
		Type: EventType(event.Type),
	}

	switch out.Type {
	case EventCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		out.Session = translateSession(&s)

	case EventChargeRefunded:
		var c stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &c); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		out.Charge = translateCharge(&c)

	case EventInvoicePaymentRefunded, EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		out.Invoice = translateInvoice(&inv)

	case EventDisputeCreated, EventDisputeUpdated, EventDisputeClosed:
		var d stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		out.Dispute = translateDispute(&d)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		out.Subscription = translateSubscription(&sub)
	}

	return out, nil
}

func translateSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       s.ID,
		Mode:     CheckoutMode(s.Mode),
		Metadata: s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if s.Invoice != nil {
		out.InvoiceID = s.Invoice.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func translateCharge(c *stripe.Charge) *Charge {
	out := &Charge{
		ID:             c.ID,
		AmountRefunded: c.AmountRefunded,
	}
	if c.Customer != nil {
		out.CustomerID = c.Customer.ID
	}
	if c.Invoice != nil {
		out.InvoiceID = c.Invoice.ID
	}
	if c.PaymentIntent != nil {
		out.PaymentIntentID = c.PaymentIntent.ID
	}
	return out
}

func translateInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:         inv.ID,
		AmountPaid: inv.AmountPaid,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	return out
}

func translateDispute(d *stripe.Dispute) *Dispute {
	out := &Dispute{
		ID:          d.ID,
		AmountCents: d.Amount,
		Status:      string(d.Status),
	}
	if d.Charge != nil {
		out.ChargeID = d.Charge.ID
	}
	return out
}

func translateSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 sub.ID,
		Status:             SubscriptionStatus(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	return out
}

// normalizeError maps Stripe API errors onto the package sentinels so
// callers can tell "the processor has no such object" from transport
// failures without importing stripe-go.
func normalizeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
		}
	}
	return err
}

var _ Provider = (*StripeProvider)(nil)
