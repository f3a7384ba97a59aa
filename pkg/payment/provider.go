package payment

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the processor has no record of the requested
	// object. Reconciliation treats this as a drift signal, not a
	// failure.
	ErrNotFound = errors.New("processor object not found")

	// ErrInvalidSignature means webhook signature verification failed.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrMalformedEvent means the payload could not be parsed into the
	// local schema. Such deliveries should not be retried blindly.
	ErrMalformedEvent = errors.New("malformed processor event")
)

// Provider is the narrow surface through which the billing core reaches
// the payment processor. Implementations translate processor SDK types
// into the local schema and normalize not-found responses to
// ErrNotFound so callers can distinguish drift from transport failure.
type Provider interface {
	// VerifyWebhook validates the delivery signature and parses the
	// payload into a locally-typed Event.
	VerifyWebhook(payload []byte, signature string) (*Event, error)

	// GetSubscription fetches the live subscription state by processor id.
	GetSubscription(ctx context.Context, id string) (*Subscription, error)

	// GetCharge fetches a charge by processor id.
	GetCharge(ctx context.Context, id string) (*Charge, error)

	// GetEvent re-fetches a previously delivered event by id. Used by
	// webhook recovery, which must not trust locally stored payloads.
	GetEvent(ctx context.Context, id string) (*Event, error)
}
