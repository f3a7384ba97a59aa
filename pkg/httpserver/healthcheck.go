package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pagelift/billing/pkg/logger"
)

// Healthcheck returns a probe handler. With no dependency checks it is
// a liveness probe; with checks it reports readiness, failing on the
// first dependency that does.
func Healthcheck(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				http.Error(w, "NOT_READY", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
