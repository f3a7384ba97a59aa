package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pagelift/billing/pkg/ledger"
	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/reconcile"
	"github.com/pagelift/billing/pkg/subscription"
)

// actorHeader carries the authenticated caller's user id, set by the
// upstream auth gateway. The role itself is always re-checked against
// the database.
const actorHeader = "x-user-id"

// AdminService exposes manual corrections and sync-run inspection to
// operators.
type AdminService struct {
	ledger   ledger.Ledger
	profiles subscription.ProfileStore
	runs     reconcile.RunStore
	log      *slog.Logger
}

// NewAdminService creates the admin API service.
func NewAdminService(led ledger.Ledger, profiles subscription.ProfileStore, runs reconcile.RunStore, log *slog.Logger) *AdminService {
	if led == nil || profiles == nil || runs == nil {
		panic("billing module: ledger, profiles and runs are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminService{ledger: led, profiles: profiles, runs: runs, log: log}
}

// Handle returns the admin router.
func (s *AdminService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireAdmin)
	r.Post("/credits/adjust", s.adjustCredits)
	r.Get("/sync-runs", s.listSyncRuns)
	r.Get("/balance/{userID}", s.balance)
	return r
}

// requireAdmin resolves the acting user and verifies the admin role
// from the database. Header identity alone is never enough: a stale or
// forged role claim must not reach the ledger.
func (s *AdminService) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err := uuid.Parse(r.Header.Get(actorHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		actor, err := s.profiles.Get(r.Context(), actorID)
		if err != nil {
			if errors.Is(err, subscription.ErrProfileNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "profile lookup failed")
			return
		}
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adjustRequest struct {
	UserID uuid.UUID `json:"user_id"`
	// Amount is positive to grant, negative to remove.
	Amount int64  `json:"amount"`
	Pool   string `json:"pool"`
	Reason string `json:"reason"`
	// IdempotencyKey lets callers retry safely. Generated when absent.
	IdempotencyKey string `json:"idempotency_key"`
}

type adjustResponse struct {
	RefID               string `json:"ref_id"`
	SubscriptionCredits int64  `json:"subscription_credits"`
	PurchasedCredits    int64  `json:"purchased_credits"`
}

func (s *AdminService) adjustCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil || req.Amount == 0 || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "user_id, non-zero amount and reason are required")
		return
	}
	pool := ledger.Pool(req.Pool)
	switch pool {
	case ledger.PoolSubscription, ledger.PoolPurchased:
	case "":
		pool = ledger.PoolSubscription
	default:
		writeError(w, http.StatusBadRequest, "pool must be subscription or purchased")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	refID := ledger.AdjustmentRef(req.IdempotencyKey)

	var err error
	if req.Amount > 0 {
		if pool == ledger.PoolSubscription {
			err = s.ledger.AddSubscriptionCredits(ctx, req.UserID, req.Amount, refID, req.Reason)
		} else {
			err = s.ledger.AddPurchasedCredits(ctx, req.UserID, req.Amount, refID, req.Reason)
		}
	} else {
		_, err = s.ledger.ClawbackCredits(ctx, req.UserID, -req.Amount, req.Reason, refID, pool)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "manual credit adjustment failed",
			logger.Component("admin_endpoint"),
			logger.UserID(req.UserID),
			logger.RefID(refID),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "adjustment failed")
		return
	}

	bal, err := s.ledger.Balance(ctx, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "balance lookup failed")
		return
	}

	s.log.InfoContext(ctx, "manual credit adjustment applied",
		logger.Component("admin_endpoint"),
		logger.UserID(req.UserID),
		logger.RefID(refID),
		logger.Credits(req.Amount),
		logger.Pool(string(pool)))

	writeJSON(w, http.StatusOK, adjustResponse{
		RefID:               refID,
		SubscriptionCredits: bal.SubscriptionCredits,
		PurchasedCredits:    bal.PurchasedCredits,
	})
}

type syncRunResponse struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Status        string   `json:"status"`
	Processed     int      `json:"processed"`
	Discrepancies int      `json:"discrepancies"`
	Fixed         int      `json:"fixed"`
	Failed        int      `json:"failed"`
	Notes         []string `json:"notes,omitempty"`
	Error         string   `json:"error,omitempty"`
	StartedAt     string   `json:"started_at"`
	CompletedAt   *string  `json:"completed_at,omitempty"`
}

func (s *AdminService) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.List(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync run lookup failed")
		return
	}

	out := make([]syncRunResponse, 0, len(runs))
	for _, run := range runs {
		resp := syncRunResponse{
			ID:            run.ID.String(),
			Type:          string(run.Type),
			Status:        string(run.Status),
			Processed:     run.Processed,
			Discrepancies: run.Discrepancies,
			Fixed:         run.Fixed,
			Failed:        run.Failed,
			Notes:         run.Notes,
			Error:         run.Error,
			StartedAt:     run.StartedAt.UTC().Format(time.RFC3339),
		}
		if run.CompletedAt != nil {
			completed := run.CompletedAt.UTC().Format(time.RFC3339)
			resp.CompletedAt = &completed
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *AdminService) balance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	bal, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "balance lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"subscription_credits": bal.SubscriptionCredits,
		"purchased_credits":    bal.PurchasedCredits,
		"total":                bal.Total(),
	})
}
