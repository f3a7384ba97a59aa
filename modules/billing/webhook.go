package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	billingpkg "github.com/pagelift/billing/pkg/billing"
	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/payment"
)

// maxWebhookBody bounds webhook payload size. Stripe events are a few
// KB; anything near this limit is garbage.
const maxWebhookBody = 1 << 20

// WebhookService verifies and dispatches processor webhook deliveries.
type WebhookService struct {
	provider   payment.Provider
	dispatcher *billingpkg.Dispatcher
	log        *slog.Logger
}

// NewWebhookService creates the webhook endpoint service.
func NewWebhookService(provider payment.Provider, dispatcher *billingpkg.Dispatcher, log *slog.Logger) *WebhookService {
	if provider == nil || dispatcher == nil {
		panic("billing module: provider and dispatcher are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookService{provider: provider, dispatcher: dispatcher, log: log}
}

// Handle returns the webhook router.
func (s *WebhookService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/stripe", s.receive)
	return r
}

// receive maps dispatch outcomes onto status codes the processor's
// retry behavior keys off: validation failures are acknowledged (a
// retry cannot fix them), transient failures return 500 so the
// processor redelivers.
func (s *WebhookService) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := s.provider.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			s.log.WarnContext(ctx, "webhook signature rejected",
				logger.Component("webhook_endpoint"),
				logger.Error(err))
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		s.log.ErrorContext(ctx, "webhook payload rejected",
			logger.Component("webhook_endpoint"),
			logger.Error(err))
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		if billingpkg.IsValidationError(err) {
			// Recorded as unrecoverable; acknowledge so the processor
			// stops resending a payload that can never succeed.
			writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
			return
		}
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
