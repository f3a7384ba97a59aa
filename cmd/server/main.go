package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pagelift/billing/migrations"
	module "github.com/pagelift/billing/modules/billing"
	"github.com/pagelift/billing/pkg/billing"
	"github.com/pagelift/billing/pkg/config"
	"github.com/pagelift/billing/pkg/httpserver"
	"github.com/pagelift/billing/pkg/ledger"
	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/notify"
	"github.com/pagelift/billing/pkg/payment"
	"github.com/pagelift/billing/pkg/pg"
	"github.com/pagelift/billing/pkg/reconcile"
	redispkg "github.com/pagelift/billing/pkg/redis"
	"github.com/pagelift/billing/pkg/subscription"
)

type appConfig struct {
	Logger    logger.Config
	PG        pg.Config
	Redis     redispkg.Config
	Stripe    payment.StripeConfig
	Notify    notify.Config
	Reconcile reconcile.Config
	HTTP      httpserver.Config

	CronSecret      string        `env:"CRON_SECRET,required"`
	PlansPath       string        `env:"PLANS_PATH" envDefault:"config/plans.yaml"`
	WebhookDedupTTL time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"72h"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Logger, logger.WithService("billing-api"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, migrations.FS, ".", log); err != nil {
		return err
	}

	redisClient, err := redispkg.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

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
		log.WarnContext(ctx, "email alerts disabled, falling back to log alerts", logger.Error(err))
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
	dedup := billing.NewRedisDedupGuard(redisClient, cfg.WebhookDedupTTL)

	registry := billing.NewRegistry()
	handlers := billing.NewHandlerSet(led, syncSvc, subs, profiles, disputes, provider, alerter, log)
	handlers.RegisterAll(registry)
	dispatcher := billing.NewDispatcher(registry, dedup, webhookEvents, log)

	runs := reconcile.NewPGRunStore(pool)
	jobs := reconcile.NewJobs(cfg.Reconcile, runs, subs, syncSvc, provider, dispatcher, webhookEvents, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", httpserver.Healthcheck(log,
		pg.Healthcheck(pool),
		redispkg.Healthcheck(redisClient),
	))
	r.Mount("/", module.Router(module.RouterOptions{
		Webhook: module.NewWebhookService(provider, dispatcher, log),
		Cron:    module.NewCronService(jobs, cfg.CronSecret, log),
		Admin:   module.NewAdminService(led, profiles, runs, log),
	}))

	return httpserver.Run(ctx, cfg.HTTP, r, log)
}
