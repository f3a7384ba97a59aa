package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDisputeStore persists dispute records in the dispute_events table.
type PGDisputeStore struct {
	db *pgxpool.Pool
}

// NewPGDisputeStore returns a store backed by the given pool.
func NewPGDisputeStore(db *pgxpool.Pool) *PGDisputeStore {
	return &PGDisputeStore{db: db}
}

func (s *PGDisputeStore) Upsert(ctx context.Context, rec *DisputeRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO dispute_events (dispute_id, user_id, charge_id, amount_cents, credits_held, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (dispute_id) DO UPDATE SET
			amount_cents = EXCLUDED.amount_cents,
			credits_held = EXCLUDED.credits_held,
			state        = EXCLUDED.state,
			updated_at   = now()`,
		rec.DisputeID, rec.UserID, rec.ChargeID, rec.AmountCents, rec.CreditsHeld, string(rec.State))
	if err != nil {
		return fmt.Errorf("upsert dispute %s: %w", rec.DisputeID, err)
	}
	return nil
}

func (s *PGDisputeStore) Get(ctx context.Context, disputeID string) (*DisputeRecord, error) {
	var rec DisputeRecord
	var state string
	err := s.db.QueryRow(ctx, `
		SELECT dispute_id, user_id, charge_id, amount_cents, credits_held, state, created_at, updated_at
		FROM dispute_events WHERE dispute_id = $1`, disputeID).
		Scan(&rec.DisputeID, &rec.UserID, &rec.ChargeID, &rec.AmountCents, &rec.CreditsHeld, &state, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dispute %s: %w", disputeID, err)
	}
	rec.State = DisputeState(state)
	return &rec, nil
}

func (s *PGDisputeStore) SetState(ctx context.Context, disputeID string, state DisputeState) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE dispute_events SET state = $2, updated_at = now() WHERE dispute_id = $1`,
		disputeID, string(state))
	if err != nil {
		return fmt.Errorf("set dispute %s state: %w", disputeID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

// PGWebhookEventStore records deliveries in the webhook_events table.
type PGWebhookEventStore struct {
	db *pgxpool.Pool
}

// NewPGWebhookEventStore returns a store backed by the given pool.
func NewPGWebhookEventStore(db *pgxpool.Pool) *PGWebhookEventStore {
	return &PGWebhookEventStore{db: db}
}

func (s *PGWebhookEventStore) MarkCompleted(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, status, recoverable, created_at, updated_at)
		VALUES ($1, $2, $3, false, now(), now())
		ON CONFLICT (event_id) DO UPDATE SET
			status     = EXCLUDED.status,
			last_error = NULL,
			updated_at = now()`,
		eventID, eventType, string(WebhookCompleted))
	if err != nil {
		return fmt.Errorf("mark webhook event %s completed: %w", eventID, err)
	}
	return nil
}

func (s *PGWebhookEventStore) RecordFailure(ctx context.Context, eventID, eventType string, recoverable bool, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, status, recoverable, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (event_id) DO UPDATE SET
			status      = EXCLUDED.status,
			recoverable = EXCLUDED.recoverable,
			last_error  = EXCLUDED.last_error,
			updated_at  = now()
		WHERE webhook_events.status <> 'completed'`,
		eventID, eventType, string(WebhookFailed), recoverable, msg)
	if err != nil {
		return fmt.Errorf("record webhook event %s failure: %w", eventID, err)
	}
	return nil
}

func (s *PGWebhookEventStore) ListRecoverable(ctx context.Context, maxRetries, limit int) ([]*WebhookEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_id, event_type, status, recoverable, retry_count, COALESCE(last_error, ''), last_retry_at, created_at, updated_at
		FROM webhook_events
		WHERE status = 'failed' AND recoverable AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list recoverable webhook events: %w", err)
	}
	defer rows.Close()

	var out []*WebhookEvent
	for rows.Next() {
		var ev WebhookEvent
		var status string
		if err := rows.Scan(&ev.EventID, &ev.EventType, &status, &ev.Recoverable, &ev.RetryCount, &ev.LastError, &ev.LastRetryAt, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		ev.Status = WebhookEventStatus(status)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}
	return out, nil
}

func (s *PGWebhookEventStore) IncrementRetry(ctx context.Context, eventID, lastError string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		UPDATE webhook_events
		SET retry_count = retry_count + 1, last_error = $2, last_retry_at = now(), updated_at = now()
		WHERE event_id = $1
		RETURNING retry_count`, eventID, lastError).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrWebhookEventNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry for webhook event %s: %w", eventID, err)
	}
	return count, nil
}

func (s *PGWebhookEventStore) MarkUnrecoverable(ctx context.Context, eventID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE webhook_events SET status = $2, updated_at = now() WHERE event_id = $1`,
		eventID, string(WebhookUnrecoverable))
	if err != nil {
		return fmt.Errorf("mark webhook event %s unrecoverable: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}
