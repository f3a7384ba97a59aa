package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence interface for the local subscription mirror.
type Store interface {
	// Upsert creates or updates the record keyed by (user, provider sub id).
	Upsert(ctx context.Context, sub *Subscription) error

	// GetByProviderID returns the record for a processor subscription id.
	// Returns ErrNotFound when no record exists.
	GetByProviderID(ctx context.Context, providerSubID string) (*Subscription, error)

	// MarkCanceled sets status=canceled and the cancellation timestamp.
	MarkCanceled(ctx context.Context, providerSubID string, canceledAt time.Time) error

	// UpdatePeriod patches only the period window, for the "still
	// active, just extend" reconciliation case.
	UpdatePeriod(ctx context.Context, providerSubID string, start, end time.Time) error

	// ListExpiredActive returns locally-active subscriptions whose
	// current period ended before now.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)

	// ListReconcilable returns active/trialing/past_due subscriptions
	// ordered by provider id, offset-paged for batched reconciliation.
	ListReconcilable(ctx context.Context, offset, limit int) ([]*Subscription, error)

	// CountReconcilable returns the total reconcilable population so the
	// caller can tell whether more batches remain.
	CountReconcilable(ctx context.Context) (int, error)
}

// ProfileStore is the persistence interface for account profiles.
// Credit balance columns are read-only here; only the ledger procedures
// write them.
type ProfileStore interface {
	// Get returns the profile for a user id, or ErrProfileNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// GetByCustomerID resolves a profile from the processor customer
	// reference, or ErrProfileNotFound.
	GetByCustomerID(ctx context.Context, customerID string) (*Profile, error)

	// UpdateSubscriptionState sets the mirrored status and tier key.
	// Nil values clear the columns.
	UpdateSubscriptionState(ctx context.Context, userID uuid.UUID, status *Status, tierKey *string) error

	// SetDisputeStatus updates the dispute flag.
	SetDisputeStatus(ctx context.Context, userID uuid.UUID, flag DisputeFlag) error
}
