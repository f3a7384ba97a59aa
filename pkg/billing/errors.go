package billing

import "errors"

var (
	// ErrMalformedEvent indicates a payload missing the object the
	// event type requires. Not retryable.
	ErrMalformedEvent = errors.New("malformed event payload")
	// ErrMissingChargeID indicates a dispute event that does not
	// reference a charge. Not retryable.
	ErrMissingChargeID = errors.New("dispute event has no charge id")
	// ErrMissingCustomerID indicates an event whose charge or session
	// carries no customer reference. Not retryable.
	ErrMissingCustomerID = errors.New("event has no customer id")
	// ErrInvalidCreditsMetadata indicates a one-time purchase session
	// without a usable credits amount in its metadata.
	ErrInvalidCreditsMetadata = errors.New("invalid credits metadata on checkout session")
)
