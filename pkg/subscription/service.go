package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/payment"
)

// Service is the single write path for subscription state mirrored from
// the processor. Live webhook handlers and reconciliation both sync
// through it, so the plan mapping and period validation cannot drift
// between the two.
type Service struct {
	catalog  *Catalog
	subs     Store
	profiles ProfileStore
	log      *slog.Logger
}

// NewService creates the sync service. Panics on nil dependencies to
// fail fast during composition.
func NewService(catalog *Catalog, subs Store, profiles ProfileStore, log *slog.Logger) *Service {
	if catalog == nil {
		panic("subscription: catalog is required")
	}
	if subs == nil {
		panic("subscription: store is required")
	}
	if profiles == nil {
		panic("subscription: profile store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{catalog: catalog, subs: subs, profiles: profiles, log: log}
}

// Catalog exposes the plan catalog for callers that need plan lookups
// alongside syncing (checkout and renewal grants).
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// SyncFromProcessor upserts the local subscription row and the
// profile's mirrored status and tier from live processor state.
//
// It fails loudly on an unknown price id (granting wrong credit amounts
// is worse than failing the sync) and on missing period bounds (a
// corrupt period would desync all future reconciliation).
func (s *Service) SyncFromProcessor(ctx context.Context, userID uuid.UUID, psub *payment.Subscription) error {
	if psub == nil {
		return ErrMissingProcessor
	}

	plan, err := s.catalog.ByPriceID(psub.PriceID)
	if err != nil {
		return fmt.Errorf("sync subscription %s: %w", psub.ID, err)
	}

	if psub.CurrentPeriodStart <= 0 || psub.CurrentPeriodEnd <= 0 {
		return fmt.Errorf("sync subscription %s: %w (start=%d end=%d)",
			psub.ID, ErrInvalidPeriod, psub.CurrentPeriodStart, psub.CurrentPeriodEnd)
	}

	status := StatusFromProcessor(psub.Status)

	sub := &Subscription{
		UserID:             userID,
		ProviderSubID:      psub.ID,
		Status:             status,
		PriceID:            psub.PriceID,
		CurrentPeriodStart: time.Unix(psub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(psub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  psub.CancelAtPeriodEnd,
	}
	if psub.CanceledAt > 0 {
		t := time.Unix(psub.CanceledAt, 0).UTC()
		sub.CanceledAt = &t
	}

	if err := s.subs.Upsert(ctx, sub); err != nil {
		return err
	}

	// Tier is stored by key, not display name: downstream consumers look
	// up behavior by key.
	tierKey := plan.Key
	if err := s.profiles.UpdateSubscriptionState(ctx, userID, &status, &tierKey); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription synced",
		logger.Component("subscription_sync"),
		logger.UserID(userID),
		logger.SubscriptionID(psub.ID),
		slog.String("status", string(status)),
		slog.String("tier", plan.Key))

	return nil
}

// MarkCanceled terminates the local record and clears the profile
// mirror. Used when the processor reports the subscription deleted or
// has no record of it at all.
func (s *Service) MarkCanceled(ctx context.Context, userID uuid.UUID, providerSubID string) error {
	now := time.Now().UTC()
	if err := s.subs.MarkCanceled(ctx, providerSubID, now); err != nil {
		return err
	}

	status := StatusCanceled
	if err := s.profiles.UpdateSubscriptionState(ctx, userID, &status, nil); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription marked canceled",
		logger.Component("subscription_sync"),
		logger.UserID(userID),
		logger.SubscriptionID(providerSubID))

	return nil
}

// UpdatePeriod extends the local period window only. Reconciliation
// uses it when the processor says the subscription is fine and only the
// renewal event went missing.
func (s *Service) UpdatePeriod(ctx context.Context, providerSubID string, start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return fmt.Errorf("update period for %s: %w", providerSubID, ErrInvalidPeriod)
	}
	return s.subs.UpdatePeriod(ctx, providerSubID, start, end)
}

// StatusFromProcessor maps processor statuses onto the local enum.
// Anything unrecognized lands on incomplete so it shows up in
// reconciliation instead of passing as active.
func StatusFromProcessor(status payment.SubscriptionStatus) Status {
	switch status {
	case payment.SubscriptionActive:
		return StatusActive
	case payment.SubscriptionTrialing:
		return StatusTrialing
	case payment.SubscriptionPastDue:
		return StatusPastDue
	case payment.SubscriptionCanceled:
		return StatusCanceled
	default:
		return StatusIncomplete
	}
}
