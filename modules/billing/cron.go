package billing

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/reconcile"
)

// cronSecretHeader carries the shared secret external schedulers
// authenticate with.
const cronSecretHeader = "x-cron-secret"

// CronService exposes HTTP triggers for the reconciliation jobs so an
// external scheduler can drive them.
type CronService struct {
	jobs   *reconcile.Jobs
	secret string
	log    *slog.Logger
}

// NewCronService creates the cron trigger service. Panics without a
// secret: unauthenticated job triggers would let anyone hammer the
// processor API on our behalf.
func NewCronService(jobs *reconcile.Jobs, secret string, log *slog.Logger) *CronService {
	if jobs == nil {
		panic("billing module: jobs are required")
	}
	if secret == "" {
		panic("billing module: cron secret is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronService{jobs: jobs, secret: secret, log: log}
}

// Handle returns the cron router.
func (s *CronService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireSecret)
	r.Post("/expiration-check", s.expirationCheck)
	r.Post("/reconcile", s.reconcile)
	r.Post("/webhook-recovery", s.webhookRecovery)
	return r
}

func (s *CronService) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(cronSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type runResponse struct {
	RunID         string `json:"run_id"`
	Processed     int    `json:"processed"`
	Discrepancies int    `json:"discrepancies"`
	Fixed         int    `json:"fixed"`
	Failed        int    `json:"failed"`
	More          *bool  `json:"more,omitempty"`
	NextOffset    *int   `json:"next_offset,omitempty"`
}

func (s *CronService) expirationCheck(w http.ResponseWriter, r *http.Request) {
	run, err := s.jobs.ExpirationCheck(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "expiration check failed",
			logger.Component("cron_endpoint"), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "job failed")
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run, nil, 0))
}

func (s *CronService) reconcile(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	run, more, err := s.jobs.FullReconciliation(r.Context(), offset)
	if err != nil {
		s.log.ErrorContext(r.Context(), "reconciliation failed",
			logger.Component("cron_endpoint"), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "job failed")
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run, &more, offset+run.Processed))
}

func (s *CronService) webhookRecovery(w http.ResponseWriter, r *http.Request) {
	run, err := s.jobs.WebhookRecovery(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "webhook recovery failed",
			logger.Component("cron_endpoint"), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "job failed")
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run, nil, 0))
}

func runToResponse(run *reconcile.SyncRun, more *bool, nextOffset int) runResponse {
	resp := runResponse{
		RunID:         run.ID.String(),
		Processed:     run.Processed,
		Discrepancies: run.Discrepancies,
		Fixed:         run.Fixed,
		Failed:        run.Failed,
	}
	if more != nil {
		resp.More = more
		if *more {
			resp.NextOffset = &nextOffset
		}
	}
	return resp
}
