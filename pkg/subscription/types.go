package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the local state of a subscription.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
)

// DisputeFlag is the profile-level dispute state. A pending flag must
// block credit-consuming actions at the call site.
type DisputeFlag string

const (
	DisputeNone     DisputeFlag = "none"
	DisputePending  DisputeFlag = "pending"
	DisputeResolved DisputeFlag = "resolved"
)

// Role gates the admin HTTP surface. Checked against the database,
// never trusted from request headers.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Subscription is one active-or-historical record per user per
// processor subscription id, mirrored from the processor by the sync
// service and corrected by reconciliation.
type Subscription struct {
	UserID             uuid.UUID
	ProviderSubID      string
	Status             Status
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	// ScheduledPriceID and ScheduledChangeDate represent a pending
	// downgrade that takes effect at period end.
	ScheduledPriceID    *string
	ScheduledChangeDate *time.Time
	CanceledAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsExpired reports whether the local period window is already past.
func (s *Subscription) IsExpired(now time.Time) bool {
	return !s.CurrentPeriodEnd.IsZero() && s.CurrentPeriodEnd.Before(now)
}

// Profile is the per-user account record holding both credit pools and
// the subscription/dispute flags. Balance columns are mutated only by
// the ledger procedures; the stores here never write them.
type Profile struct {
	UserID              uuid.UUID
	Email               string
	Role                Role
	SubscriptionCredits int64
	PurchasedCredits    int64
	// SubscriptionTier holds the plan key (not the display name) so
	// downstream consumers can look up behavior by key.
	SubscriptionTier   *string
	SubscriptionStatus *Status
	DisputeStatus      DisputeFlag
	StripeCustomerID   *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TotalCredits returns usable credits across both pools.
func (p *Profile) TotalCredits() int64 {
	return p.SubscriptionCredits + p.PurchasedCredits
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}
