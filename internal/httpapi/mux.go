package httpapi

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux returns the root router with request ids, panic recovery and
// request logging installed, plus /healthz and /metrics. Feature modules
// register their routes on it.
func NewMux(logger *slog.Logger, checks ...HealthCheck) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	registerHealthcheck(r, logger, checks)
	r.Method("GET", "/metrics", promhttp.Handler())
	return r
}
