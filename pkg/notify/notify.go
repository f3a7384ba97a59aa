package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrz1836/postmark"

	"github.com/pagelift/billing/pkg/logger"
)

// Alert is one admin notification.
type Alert struct {
	Subject string
	Body    string
	// Tag groups alerts in the delivery provider (e.g. "dispute").
	Tag string
}

// Alerter delivers admin alerts. Implementations must be safe for
// concurrent use.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// Config holds alert delivery configuration.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"ALERT_SENDER_EMAIL"`
	AdminEmail           string `env:"ALERT_ADMIN_EMAIL"`
}

var ErrInvalidConfig = errors.New("invalid alerter configuration")

// EmailAlerter sends alerts to the admin address via Postmark.
type EmailAlerter struct {
	client *postmark.Client
	config Config
}

// NewEmailAlerter creates a Postmark-backed alerter.
func NewEmailAlerter(cfg Config) (*EmailAlerter, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if cfg.AdminEmail == "" {
		return nil, fmt.Errorf("%w: AdminEmail is required", ErrInvalidConfig)
	}

	return &EmailAlerter{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

func (a *EmailAlerter) Alert(ctx context.Context, alert Alert) error {
	resp, err := a.client.SendEmail(ctx, postmark.Email{
		From:     a.config.SenderEmail,
		To:       a.config.AdminEmail,
		Subject:  alert.Subject,
		Tag:      alert.Tag,
		TextBody: alert.Body,
	})
	if err != nil {
		return err
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// LogAlerter writes alerts to the structured log. Used in development
// and as the fallback when email delivery is not configured.
type LogAlerter struct {
	log *slog.Logger
}

func NewLogAlerter(log *slog.Logger) *LogAlerter {
	if log == nil {
		log = slog.Default()
	}
	return &LogAlerter{log: log}
}

func (a *LogAlerter) Alert(ctx context.Context, alert Alert) error {
	a.log.WarnContext(ctx, "admin alert",
		logger.Component("notify"),
		slog.String("subject", alert.Subject),
		slog.String("tag", alert.Tag),
		slog.String("body", alert.Body))
	return nil
}

var (
	_ Alerter = (*EmailAlerter)(nil)
	_ Alerter = (*LogAlerter)(nil)
)
