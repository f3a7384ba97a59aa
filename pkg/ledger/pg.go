package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errTransactionNotFound is the error_message value the clawback
// procedure reports when no grant exists under the reference.
const errTransactionNotFound = "transaction_not_found"

// PGLedger implements Ledger over the transactional procedures installed
// by the migrations. Each call is a single round trip; the procedure
// owns locking, pool precedence and reference-id dedup.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger creates a ledger client backed by the given pool.
// Panics on a nil pool to fail fast during composition.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	if pool == nil {
		panic("ledger: pgx pool is required")
	}
	return &PGLedger{pool: pool}
}

func (l *PGLedger) AddSubscriptionCredits(ctx context.Context, userID uuid.UUID, amount int64, refID, description string) error {
	return l.add(ctx, userID, PoolSubscription, TypeSubscription, amount, refID, description)
}

func (l *PGLedger) AddPurchasedCredits(ctx context.Context, userID uuid.UUID, amount int64, refID, description string) error {
	return l.add(ctx, userID, PoolPurchased, TypePurchase, amount, refID, description)
}

func (l *PGLedger) add(ctx context.Context, userID uuid.UUID, pool Pool, txType TransactionType, amount int64, refID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if refID == "" {
		return ErrEmptyRefID
	}

	_, err := l.pool.Exec(ctx,
		`SELECT add_credits($1, $2, $3, $4, $5, $6)`,
		userID, string(pool), amount, string(txType), refID, description)
	if err != nil {
		return fmt.Errorf("add credits (%s, ref %s): %w", pool, refID, err)
	}
	return nil
}

func (l *PGLedger) ClawbackCredits(ctx context.Context, userID uuid.UUID, amount int64, reason, refID string, pool Pool) (ClawbackResult, error) {
	if amount <= 0 {
		return ClawbackResult{}, ErrInvalidAmount
	}
	if refID == "" {
		return ClawbackResult{}, ErrEmptyRefID
	}
	switch pool {
	case PoolSubscription, PoolPurchased, PoolAuto:
	default:
		return ClawbackResult{}, ErrInvalidPool
	}

	var res ClawbackResult
	err := l.pool.QueryRow(ctx,
		`SELECT success, credits_clawed_back, subscription_clawed, purchased_clawed,
		        new_subscription_balance, new_purchased_balance, error_message
		   FROM clawback_credits($1, $2, $3, $4, $5)`,
		userID, amount, reason, refID, string(pool)).
		Scan(&res.Success, &res.CreditsClawedBack, &res.SubscriptionClawed, &res.PurchasedClawed,
			&res.NewSubscriptionBalance, &res.NewPurchasedBalance, &res.ErrorMessage)
	if err != nil {
		return ClawbackResult{}, fmt.Errorf("clawback credits (ref %s): %w", refID, err)
	}
	return res, nil
}

func (l *PGLedger) ClawbackFromTransaction(ctx context.Context, userID uuid.UUID, originalRefID, reason string) (ClawbackResult, error) {
	if originalRefID == "" {
		return ClawbackResult{}, ErrEmptyRefID
	}

	var res ClawbackResult
	err := l.pool.QueryRow(ctx,
		`SELECT success, credits_clawed_back, subscription_clawed, purchased_clawed,
		        new_subscription_balance, new_purchased_balance, error_message
		   FROM clawback_from_transaction_v2($1, $2, $3)`,
		userID, originalRefID, reason).
		Scan(&res.Success, &res.CreditsClawedBack, &res.SubscriptionClawed, &res.PurchasedClawed,
			&res.NewSubscriptionBalance, &res.NewPurchasedBalance, &res.ErrorMessage)
	if err != nil {
		return ClawbackResult{}, fmt.Errorf("clawback from transaction (ref %s): %w", originalRefID, err)
	}

	if !res.Success && res.ErrorMessage == errTransactionNotFound {
		return res, ErrTransactionNotFound
	}
	return res, nil
}

func (l *PGLedger) Balance(ctx context.Context, userID uuid.UUID) (Balance, error) {
	var b Balance
	err := l.pool.QueryRow(ctx,
		`SELECT subscription_credits, purchased_credits FROM profiles WHERE user_id = $1`,
		userID).
		Scan(&b.SubscriptionCredits, &b.PurchasedCredits)
	if err != nil {
		return Balance{}, fmt.Errorf("fetch balance: %w", err)
	}
	return b, nil
}

var _ Ledger = (*PGLedger)(nil)
