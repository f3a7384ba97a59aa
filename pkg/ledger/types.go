package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Pool selects which credit pool a mutation targets.
type Pool string

const (
	PoolSubscription Pool = "subscription"
	PoolPurchased    Pool = "purchased"
	// PoolAuto lets the ledger decide precedence: subscription credits
	// are drawn down before purchased ones.
	PoolAuto Pool = "auto"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypePurchase     TransactionType = "purchase"
	TypeSubscription TransactionType = "subscription"
	TypeUsage        TransactionType = "usage"
	TypeRefund       TransactionType = "refund"
	TypeBonus        TransactionType = "bonus"
	TypeAdjustment   TransactionType = "adjustment"
)

// Balance is a point-in-time snapshot of both pools.
type Balance struct {
	SubscriptionCredits int64
	PurchasedCredits    int64
}

// Total returns the usable credit total across both pools.
func (b Balance) Total() int64 {
	return b.SubscriptionCredits + b.PurchasedCredits
}

// ClawbackResult reports the outcome of a reference-correlated clawback.
type ClawbackResult struct {
	Success                bool
	CreditsClawedBack      int64
	SubscriptionClawed     int64
	PurchasedClawed        int64
	NewSubscriptionBalance int64
	NewPurchasedBalance    int64
	ErrorMessage           string
}

// Ledger is the mutation surface for credit balances. All operations are
// transactional and idempotent per reference id.
type Ledger interface {
	// AddSubscriptionCredits grants amount to the subscription pool,
	// keyed by refID. Granting twice under the same refID is a no-op.
	AddSubscriptionCredits(ctx context.Context, userID uuid.UUID, amount int64, refID, description string) error

	// AddPurchasedCredits grants amount to the purchased pool, keyed by refID.
	AddPurchasedCredits(ctx context.Context, userID uuid.UUID, amount int64, refID, description string) error

	// ClawbackCredits removes up to amount credits from the selected
	// pool, keyed by refID. Removal stops at zero; balances never go
	// negative.
	ClawbackCredits(ctx context.Context, userID uuid.UUID, amount int64, reason, refID string, pool Pool) (ClawbackResult, error)

	// ClawbackFromTransaction locates the grant recorded under
	// originalRefID and reverses exactly what it granted, split across
	// the pools the grant went to. Returns ErrTransactionNotFound when
	// no grant exists under that reference.
	ClawbackFromTransaction(ctx context.Context, userID uuid.UUID, originalRefID, reason string) (ClawbackResult, error)

	// Balance returns the current pool balances for a user.
	Balance(ctx context.Context, userID uuid.UUID) (Balance, error)
}
