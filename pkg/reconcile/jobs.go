package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagelift/billing/pkg/billing"
	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/payment"
	"github.com/pagelift/billing/pkg/subscription"
)

// Config tunes the reconciliation jobs.
type Config struct {
	// BatchSize bounds how many subscriptions one reconciliation
	// invocation verifies against the processor.
	BatchSize int `env:"RECONCILE_BATCH_SIZE" envDefault:"40"`
	// DriftTolerance is how far the local period end may lag the
	// processor's before it counts as drift. Absorbs clock skew and
	// webhook delivery latency.
	DriftTolerance time.Duration `env:"RECONCILE_DRIFT_TOLERANCE" envDefault:"1h"`
	// ProcessorDelay spaces out processor API calls to stay under rate
	// limits.
	ProcessorDelay time.Duration `env:"RECONCILE_PROCESSOR_DELAY" envDefault:"100ms"`
	// MaxEventRetries bounds webhook recovery attempts per event.
	MaxEventRetries int `env:"RECONCILE_MAX_EVENT_RETRIES" envDefault:"3"`
	// RecoveryBatchSize bounds how many failed events one recovery
	// invocation replays.
	RecoveryBatchSize int `env:"RECONCILE_RECOVERY_BATCH_SIZE" envDefault:"50"`
}

// Jobs bundles the three scheduled correction jobs with their shared
// dependencies.
type Jobs struct {
	cfg        Config
	runs       RunStore
	subs       subscription.Store
	sync       *subscription.Service
	provider   payment.Provider
	dispatcher *billing.Dispatcher
	webhooks   billing.WebhookEventStore
	log        *slog.Logger
}

// NewJobs wires the job set. The dispatcher and webhook store may be
// nil when webhook recovery is not scheduled.
func NewJobs(
	cfg Config,
	runs RunStore,
	subs subscription.Store,
	sync *subscription.Service,
	provider payment.Provider,
	dispatcher *billing.Dispatcher,
	webhooks billing.WebhookEventStore,
	log *slog.Logger,
) *Jobs {
	if runs == nil || subs == nil || sync == nil || provider == nil {
		panic("reconcile: runs, subs, sync and provider are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 40
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = time.Hour
	}
	if cfg.MaxEventRetries <= 0 {
		cfg.MaxEventRetries = 3
	}
	if cfg.RecoveryBatchSize <= 0 {
		cfg.RecoveryBatchSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{
		cfg:        cfg,
		runs:       runs,
		subs:       subs,
		sync:       sync,
		provider:   provider,
		dispatcher: dispatcher,
		webhooks:   webhooks,
		log:        log,
	}
}

// ExpirationCheck finds locally-active subscriptions whose period
// already ended and corrects them from live processor state. The
// common cause is a missed renewal webhook: the processor renewed, we
// never heard.
func (j *Jobs) ExpirationCheck(ctx context.Context) (*SyncRun, error) {
	run, err := j.runs.Create(ctx, RunExpirationCheck)
	if err != nil {
		return nil, err
	}

	var out Outcome
	defer j.complete(ctx, run, &out)

	expired, err := j.subs.ListExpiredActive(ctx, time.Now().UTC(), j.cfg.BatchSize)
	if err != nil {
		out.Err = err
		return run, err
	}

	for i, sub := range expired {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return run, err
		}
		if i > 0 {
			j.pause(ctx)
		}
		out.Processed++

		if err := j.correctSubscription(ctx, sub, &out); err != nil {
			out.Failed++
			j.log.ErrorContext(ctx, "expiration check item failed",
				logger.Job(string(RunExpirationCheck)),
				logger.SubscriptionID(sub.ProviderSubID),
				logger.Error(err))
		}
	}

	j.log.InfoContext(ctx, "expiration check finished",
		logger.Job(string(RunExpirationCheck)),
		logger.SyncRunID(run.ID),
		slog.Int("processed", out.Processed),
		slog.Int("discrepancies", out.Discrepancies),
		slog.Int("fixed", out.Fixed),
		slog.Int("failed", out.Failed))
	return run, nil
}

// FullReconciliation verifies one batch of active subscriptions against
// live processor state, starting at offset. It reports whether more
// batches remain so the scheduler can walk the population across
// invocations without one long processor hammering session.
func (j *Jobs) FullReconciliation(ctx context.Context, offset int) (*SyncRun, bool, error) {
	run, err := j.runs.Create(ctx, RunFullReconciliation)
	if err != nil {
		return nil, false, err
	}

	var out Outcome
	defer j.complete(ctx, run, &out)

	total, err := j.subs.CountReconcilable(ctx)
	if err != nil {
		out.Err = err
		return run, false, err
	}
	batch, err := j.subs.ListReconcilable(ctx, offset, j.cfg.BatchSize)
	if err != nil {
		out.Err = err
		return run, false, err
	}

	for i, sub := range batch {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return run, false, err
		}
		if i > 0 {
			j.pause(ctx)
		}
		out.Processed++

		if err := j.reconcileSubscription(ctx, sub, &out); err != nil {
			out.Failed++
			j.log.ErrorContext(ctx, "reconciliation item failed",
				logger.Job(string(RunFullReconciliation)),
				logger.SubscriptionID(sub.ProviderSubID),
				logger.Error(err))
		}
	}

	more := offset+len(batch) < total
	j.log.InfoContext(ctx, "reconciliation batch finished",
		logger.Job(string(RunFullReconciliation)),
		logger.SyncRunID(run.ID),
		slog.Int("offset", offset),
		slog.Int("total", total),
		slog.Bool("more", more),
		slog.Int("processed", out.Processed),
		slog.Int("discrepancies", out.Discrepancies),
		slog.Int("fixed", out.Fixed),
		slog.Int("failed", out.Failed))
	return run, more, nil
}

// WebhookRecovery replays failed recoverable webhook deliveries. Each
// event is re-fetched from the processor rather than trusted from local
// storage, then pushed back through the normal dispatch path.
func (j *Jobs) WebhookRecovery(ctx context.Context) (*SyncRun, error) {
	if j.dispatcher == nil || j.webhooks == nil {
		return nil, errors.New("reconcile: webhook recovery not wired")
	}

	run, err := j.runs.Create(ctx, RunWebhookRecovery)
	if err != nil {
		return nil, err
	}

	var out Outcome
	defer j.complete(ctx, run, &out)

	failed, err := j.webhooks.ListRecoverable(ctx, j.cfg.MaxEventRetries, j.cfg.RecoveryBatchSize)
	if err != nil {
		out.Err = err
		return run, err
	}

	for i, rec := range failed {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return run, err
		}
		if i > 0 {
			j.pause(ctx)
		}
		out.Processed++
		out.note("webhook event %s (%s) failed delivery: %s", rec.EventID, rec.EventType, rec.LastError)

		ev, err := j.provider.GetEvent(ctx, rec.EventID)
		if errors.Is(err, payment.ErrNotFound) {
			// The processor no longer serves the event; it can never be
			// replayed.
			if err := j.webhooks.MarkUnrecoverable(ctx, rec.EventID); err != nil {
				j.log.ErrorContext(ctx, "failed to retire webhook event",
					logger.Job(string(RunWebhookRecovery)),
					logger.EventID(rec.EventID),
					logger.Error(err))
			}
			out.Failed++
			continue
		}
		if err != nil {
			j.noteRetry(ctx, rec.EventID, err)
			out.Failed++
			continue
		}

		if err := j.dispatcher.Dispatch(ctx, ev); err != nil {
			j.noteRetry(ctx, rec.EventID, err)
			out.Failed++
			continue
		}
		out.Fixed++
	}

	j.log.InfoContext(ctx, "webhook recovery finished",
		logger.Job(string(RunWebhookRecovery)),
		logger.SyncRunID(run.ID),
		slog.Int("processed", out.Processed),
		slog.Int("fixed", out.Fixed),
		slog.Int("failed", out.Failed))
	return run, nil
}

// correctSubscription resolves one expired-looking subscription against
// processor truth.
func (j *Jobs) correctSubscription(ctx context.Context, sub *subscription.Subscription, out *Outcome) error {
	psub, err := j.provider.GetSubscription(ctx, sub.ProviderSubID)
	if errors.Is(err, payment.ErrNotFound) {
		// Processor has no record: the subscription is gone and the
		// local row is stale.
		out.note("subscription %s expired locally and unknown to processor, canceled", sub.ProviderSubID)
		if err := j.sync.MarkCanceled(ctx, sub.UserID, sub.ProviderSubID); err != nil {
			return err
		}
		out.Fixed++
		j.log.WarnContext(ctx, "expired subscription unknown to processor, canceled locally",
			logger.Job(string(RunExpirationCheck)),
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ProviderSubID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", sub.ProviderSubID, err)
	}

	switch psub.Status {
	case payment.SubscriptionCanceled:
		out.note("subscription %s canceled at processor but still active locally", sub.ProviderSubID)
		if err := j.sync.MarkCanceled(ctx, sub.UserID, sub.ProviderSubID); err != nil {
			return err
		}
		out.Fixed++
	default:
		// Still live at the processor: the renewal event went missing.
		// Extend the local window from processor truth.
		start := time.Unix(psub.CurrentPeriodStart, 0).UTC()
		end := time.Unix(psub.CurrentPeriodEnd, 0).UTC()
		out.note("subscription %s expired locally but renewed at processor, period extended to %s",
			sub.ProviderSubID, end.Format(time.RFC3339))
		if err := j.sync.UpdatePeriod(ctx, sub.ProviderSubID, start, end); err != nil {
			return err
		}
		out.Fixed++
		j.log.InfoContext(ctx, "missed renewal recovered",
			logger.Job(string(RunExpirationCheck)),
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ProviderSubID),
			slog.Time("period_end", end))
	}
	return nil
}

// reconcileSubscription compares one local row against processor state
// and re-syncs on drift.
func (j *Jobs) reconcileSubscription(ctx context.Context, sub *subscription.Subscription, out *Outcome) error {
	psub, err := j.provider.GetSubscription(ctx, sub.ProviderSubID)
	if errors.Is(err, payment.ErrNotFound) {
		out.note("subscription %s unknown to processor, canceled locally", sub.ProviderSubID)
		if err := j.sync.MarkCanceled(ctx, sub.UserID, sub.ProviderSubID); err != nil {
			return err
		}
		out.Fixed++
		j.log.WarnContext(ctx, "subscription unknown to processor, canceled locally",
			logger.Job(string(RunFullReconciliation)),
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ProviderSubID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", sub.ProviderSubID, err)
	}

	if !j.hasDrift(sub, psub) {
		return nil
	}

	out.note("subscription %s drifted from processor state (local %s/%s until %s, processor %s/%s until %s)",
		sub.ProviderSubID,
		sub.Status, sub.PriceID, sub.CurrentPeriodEnd.Format(time.RFC3339),
		subscription.StatusFromProcessor(psub.Status), psub.PriceID,
		time.Unix(psub.CurrentPeriodEnd, 0).UTC().Format(time.RFC3339))
	if err := j.sync.SyncFromProcessor(ctx, sub.UserID, psub); err != nil {
		return err
	}
	out.Fixed++
	j.log.InfoContext(ctx, "subscription drift corrected",
		logger.Job(string(RunFullReconciliation)),
		logger.UserID(sub.UserID),
		logger.SubscriptionID(sub.ProviderSubID))
	return nil
}

// hasDrift reports whether the local row disagrees with processor
// state on status, price, or period end beyond the tolerance window.
func (j *Jobs) hasDrift(local *subscription.Subscription, remote *payment.Subscription) bool {
	if local.Status != subscription.StatusFromProcessor(remote.Status) {
		return true
	}
	if local.PriceID != remote.PriceID {
		return true
	}
	remoteEnd := time.Unix(remote.CurrentPeriodEnd, 0).UTC()
	diff := remoteEnd.Sub(local.CurrentPeriodEnd)
	if diff < 0 {
		diff = -diff
	}
	return diff > j.cfg.DriftTolerance
}

func (j *Jobs) noteRetry(ctx context.Context, eventID string, cause error) {
	count, err := j.webhooks.IncrementRetry(ctx, eventID, cause.Error())
	if err != nil {
		j.log.ErrorContext(ctx, "failed to record webhook retry",
			logger.Job(string(RunWebhookRecovery)),
			logger.EventID(eventID),
			logger.Error(err))
		return
	}
	j.log.WarnContext(ctx, "webhook replay failed",
		logger.Job(string(RunWebhookRecovery)),
		logger.EventID(eventID),
		logger.RetryCount(count),
		logger.Error(cause))

	if count < j.cfg.MaxEventRetries {
		return
	}
	// Retry budget spent: retire the event so operators see it instead
	// of the recovery job silently skipping it forever.
	if err := j.webhooks.MarkUnrecoverable(ctx, eventID); err != nil {
		j.log.ErrorContext(ctx, "failed to retire webhook event",
			logger.Job(string(RunWebhookRecovery)),
			logger.EventID(eventID),
			logger.Error(err))
	}
}

// complete closes the run record and mirrors the outcome onto the
// returned struct. Persisting the completion is best effort: losing the
// mark leaves a visible running row, which is itself a signal.
func (j *Jobs) complete(ctx context.Context, run *SyncRun, out *Outcome) {
	run.Processed = out.Processed
	run.Discrepancies = out.Discrepancies
	run.Fixed = out.Fixed
	run.Failed = out.Failed
	run.Notes = out.Notes
	run.Status = RunCompleted
	if out.Err != nil {
		run.Status = RunFailed
		run.Error = out.Err.Error()
	}
	now := time.Now().UTC()
	run.CompletedAt = &now

	if err := j.runs.Complete(ctx, run.ID, *out); err != nil {
		j.log.ErrorContext(ctx, "failed to complete sync run",
			logger.SyncRunID(run.ID),
			logger.Error(err))
	}
}

// pause sleeps the configured processor delay, bailing early on
// context cancellation.
func (j *Jobs) pause(ctx context.Context) {
	if j.cfg.ProcessorDelay <= 0 {
		return
	}
	t := time.NewTimer(j.cfg.ProcessorDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
