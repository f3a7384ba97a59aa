package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/pagelift/billing/migrations"
	"github.com/pagelift/billing/pkg/billing"
	"github.com/pagelift/billing/pkg/config"
	"github.com/pagelift/billing/pkg/ledger"
	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/notify"
	"github.com/pagelift/billing/pkg/payment"
	"github.com/pagelift/billing/pkg/pg"
	"github.com/pagelift/billing/pkg/reconcile"
	"github.com/pagelift/billing/pkg/subscription"
)

type cronConfig struct {
	Logger    logger.Config
	PG        pg.Config
	Stripe    payment.StripeConfig
	Notify    notify.Config
	Reconcile reconcile.Config

	PlansPath string `env:"PLANS_PATH" envDefault:"config/plans.yaml"`

	// Schedules are standard 5-field cron expressions.
	ExpirationSchedule string `env:"CRON_EXPIRATION_SCHEDULE" envDefault:"*/30 * * * *"`
	ReconcileSchedule  string `env:"CRON_RECONCILE_SCHEDULE" envDefault:"0 3 * * *"`
	RecoverySchedule   string `env:"CRON_RECOVERY_SCHEDULE" envDefault:"*/15 * * * *"`
}

func main() {
	var cfg cronConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Logger, logger.WithService("billing-cron"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "cron runner exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cronConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, migrations.FS, ".", log); err != nil {
		return err
	}

	provider, err := payment.NewStripeProvider(cfg.Stripe)
	if err != nil {
		return err
	}

	catalog, err := subscription.NewCatalogFromSource(ctx,
		subscription.NewYAMLSource(os.DirFS("."), cfg.PlansPath))
	if err != nil {
		return err
	}

	var alerter notify.Alerter
	if emailAlerter, err := notify.NewEmailAlerter(cfg.Notify); err != nil {
		alerter = notify.NewLogAlerter(log)
	} else {
		alerter = emailAlerter
	}

	led := ledger.NewPGLedger(pool)
	subs := subscription.NewPGStore(pool)
	profiles := subscription.NewPGProfileStore(pool)
	syncSvc := subscription.NewService(catalog, subs, profiles, log)

	disputes := billing.NewPGDisputeStore(pool)
	webhookEvents := billing.NewPGWebhookEventStore(pool)

	// No Redis fast path here: recovery must be able to replay events
	// the live dispatcher already saw.
	registry := billing.NewRegistry()
	handlers := billing.NewHandlerSet(led, syncSvc, subs, profiles, disputes, provider, alerter, log)
	handlers.RegisterAll(registry)
	dispatcher := billing.NewDispatcher(registry, billing.NopDedupGuard{}, webhookEvents, log)

	runs := reconcile.NewPGRunStore(pool)
	jobs := reconcile.NewJobs(cfg.Reconcile, runs, subs, syncSvc, provider, dispatcher, webhookEvents, log)

	c := cron.New()

	if _, err := c.AddFunc(cfg.ExpirationSchedule, func() {
		if _, err := jobs.ExpirationCheck(ctx); err != nil {
			log.ErrorContext(ctx, "expiration check failed",
				logger.Job("expiration_check"), logger.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc(cfg.ReconcileSchedule, func() {
		// Walk the whole population batch by batch within one trigger.
		offset := 0
		for {
			run, more, err := jobs.FullReconciliation(ctx, offset)
			if err != nil {
				log.ErrorContext(ctx, "reconciliation failed",
					logger.Job("full_reconciliation"), logger.Error(err))
				return
			}
			if !more || run.Processed == 0 {
				return
			}
			offset += run.Processed
		}
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc(cfg.RecoverySchedule, func() {
		if _, err := jobs.WebhookRecovery(ctx); err != nil {
			log.ErrorContext(ctx, "webhook recovery failed",
				logger.Job("webhook_recovery"), logger.Error(err))
		}
	}); err != nil {
		return err
	}

	c.Start()
	log.InfoContext(ctx, "cron runner started", logger.Component("cron"))

	<-ctx.Done()

	log.InfoContext(ctx, "cron runner stopping", logger.Component("cron"))
	<-c.Stop().Done()
	return nil
}
