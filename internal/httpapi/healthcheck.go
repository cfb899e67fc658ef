package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Tom-Camp/fe/internal/utils"
)

// HealthCheck is a named dependency probe run by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthchecker struct {
	checks  []HealthCheck
	timeout time.Duration
	logger  *slog.Logger
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Error("health check failed", "check", c.Name, "error", err)
			status[c.Name] = "error"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[c.Name] = "ok"
	}
	utils.WriteJSON(w, code, status)
}

func registerHealthcheck(r chi.Router, logger *slog.Logger, checks []HealthCheck) {
	h := &healthchecker{checks: checks, timeout: 2 * time.Second, logger: logger}
	r.Get("/healthz", h.handleHealthz)
}
