package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const subscriptionColumns = `user_id, provider_sub_id, status, price_id,
	current_period_start, current_period_end, cancel_at_period_end,
	scheduled_price_id, scheduled_change_date, canceled_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.UserID, &s.ProviderSubID, &s.Status, &s.PriceID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd,
		&s.ScheduledPriceID, &s.ScheduledChangeDate, &s.CanceledAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *PGStore) Upsert(ctx context.Context, sub *Subscription) error {
	_, err := st.pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, provider_sub_id, status, price_id,
			current_period_start, current_period_end, cancel_at_period_end,
			scheduled_price_id, scheduled_change_date, canceled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (provider_sub_id) DO UPDATE SET
			status = EXCLUDED.status,
			price_id = EXCLUDED.price_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			scheduled_price_id = EXCLUDED.scheduled_price_id,
			scheduled_change_date = EXCLUDED.scheduled_change_date,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = now()`,
		sub.UserID, sub.ProviderSubID, sub.Status, sub.PriceID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.ScheduledPriceID, sub.ScheduledChangeDate, sub.CanceledAt)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.ProviderSubID, err)
	}
	return nil
}

func (st *PGStore) GetByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	sub, err := scanSubscription(st.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_sub_id = $1`,
		providerSubID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription %s: %w", providerSubID, err)
	}
	return sub, nil
}

func (st *PGStore) MarkCanceled(ctx context.Context, providerSubID string, canceledAt time.Time) error {
	_, err := st.pool.Exec(ctx, `
		UPDATE subscriptions
		   SET status = $2, canceled_at = $3, updated_at = now()
		 WHERE provider_sub_id = $1`,
		providerSubID, StatusCanceled, canceledAt)
	if err != nil {
		return fmt.Errorf("mark subscription %s canceled: %w", providerSubID, err)
	}
	return nil
}

func (st *PGStore) UpdatePeriod(ctx context.Context, providerSubID string, start, end time.Time) error {
	_, err := st.pool.Exec(ctx, `
		UPDATE subscriptions
		   SET current_period_start = $2, current_period_end = $3, updated_at = now()
		 WHERE provider_sub_id = $1`,
		providerSubID, start, end)
	if err != nil {
		return fmt.Errorf("update subscription %s period: %w", providerSubID, err)
	}
	return nil
}

func (st *PGStore) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	rows, err := st.pool.Query(ctx,
		`SELECT `+subscriptionColumns+`
		   FROM subscriptions
		  WHERE status = $1 AND current_period_end < $2
		  ORDER BY current_period_end
		  LIMIT $3`,
		StatusActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (st *PGStore) ListReconcilable(ctx context.Context, offset, limit int) ([]*Subscription, error) {
	rows, err := st.pool.Query(ctx,
		`SELECT `+subscriptionColumns+`
		   FROM subscriptions
		  WHERE status = ANY($1)
		  ORDER BY provider_sub_id
		 OFFSET $2 LIMIT $3`,
		[]string{string(StatusActive), string(StatusTrialing), string(StatusPastDue)}, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconcilable subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (st *PGStore) CountReconcilable(ctx context.Context) (int, error) {
	var n int
	err := st.pool.QueryRow(ctx,
		`SELECT count(*) FROM subscriptions WHERE status = ANY($1)`,
		[]string{string(StatusActive), string(StatusTrialing), string(StatusPastDue)}).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reconcilable subscriptions: %w", err)
	}
	return n, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*Subscription, error) {
	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)

// PGProfileStore implements ProfileStore on Postgres.
type PGProfileStore struct {
	pool *pgxpool.Pool
}

func NewPGProfileStore(pool *pgxpool.Pool) *PGProfileStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGProfileStore{pool: pool}
}

const profileColumns = `user_id, email, role, subscription_credits, purchased_credits,
	subscription_tier, subscription_status, dispute_status, stripe_customer_id,
	created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.Email, &p.Role, &p.SubscriptionCredits, &p.PurchasedCredits,
		&p.SubscriptionTier, &p.SubscriptionStatus, &p.DisputeStatus, &p.StripeCustomerID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (st *PGProfileStore) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := scanProfile(st.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return p, nil
}

func (st *PGProfileStore) GetByCustomerID(ctx context.Context, customerID string) (*Profile, error) {
	p, err := scanProfile(st.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE stripe_customer_id = $1`, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile by customer %s: %w", customerID, err)
	}
	return p, nil
}

func (st *PGProfileStore) UpdateSubscriptionState(ctx context.Context, userID uuid.UUID, status *Status, tierKey *string) error {
	_, err := st.pool.Exec(ctx, `
		UPDATE profiles
		   SET subscription_status = $2, subscription_tier = $3, updated_at = now()
		 WHERE user_id = $1`,
		userID, status, tierKey)
	if err != nil {
		return fmt.Errorf("update profile %s subscription state: %w", userID, err)
	}
	return nil
}

func (st *PGProfileStore) SetDisputeStatus(ctx context.Context, userID uuid.UUID, flag DisputeFlag) error {
	_, err := st.pool.Exec(ctx, `
		UPDATE profiles SET dispute_status = $2, updated_at = now() WHERE user_id = $1`,
		userID, flag)
	if err != nil {
		return fmt.Errorf("update profile %s dispute status: %w", userID, err)
	}
	return nil
}

var _ ProfileStore = (*PGProfileStore)(nil)
