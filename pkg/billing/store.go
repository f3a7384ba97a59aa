package billing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDisputeNotFound indicates no local record for the dispute id.
	ErrDisputeNotFound = errors.New("dispute record not found")
	// ErrWebhookEventNotFound indicates no delivery record for the
	// event id.
	ErrWebhookEventNotFound = errors.New("webhook event record not found")
)

// DisputeStore persists dispute audit records.
type DisputeStore interface {
	// Upsert inserts the record or refreshes its mutable fields.
	Upsert(ctx context.Context, rec *DisputeRecord) error
	// Get returns the record for the dispute id, or ErrDisputeNotFound.
	Get(ctx context.Context, disputeID string) (*DisputeRecord, error)
	// SetState updates the lifecycle state of an existing record.
	SetState(ctx context.Context, disputeID string, state DisputeState) error
}

// WebhookEventStatus is the delivery outcome recorded per event.
type WebhookEventStatus string

const (
	WebhookCompleted     WebhookEventStatus = "completed"
	WebhookFailed        WebhookEventStatus = "failed"
	WebhookUnrecoverable WebhookEventStatus = "unrecoverable"
)

// WebhookEvent is one recorded delivery. Failed recoverable events are
// the input queue of the recovery job.
type WebhookEvent struct {
	EventID     string
	EventType   string
	Status      WebhookEventStatus
	Recoverable bool
	RetryCount  int
	LastError   string
	LastRetryAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WebhookEventStore records per-event delivery outcomes and feeds the
// recovery job.
type WebhookEventStore interface {
	// MarkCompleted records a successful delivery, overwriting any
	// earlier failure row for the same event id.
	MarkCompleted(ctx context.Context, eventID, eventType string) error
	// RecordFailure records a failed delivery. Recoverable failures are
	// eligible for replay; validation failures are recorded with
	// recoverable=false so operators can inspect them.
	RecordFailure(ctx context.Context, eventID, eventType string, recoverable bool, cause error) error
	// ListRecoverable returns failed recoverable events with fewer than
	// maxRetries attempts, oldest first.
	ListRecoverable(ctx context.Context, maxRetries, limit int) ([]*WebhookEvent, error)
	// IncrementRetry bumps the retry counter and stores the latest
	// error, returning the new count.
	IncrementRetry(ctx context.Context, eventID, lastError string) (int, error)
	// MarkUnrecoverable removes an event from the replay queue for
	// good.
	MarkUnrecoverable(ctx context.Context, eventID string) error
}
