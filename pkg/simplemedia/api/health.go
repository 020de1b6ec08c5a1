package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports liveness and the state of dependencies
type HealthHandler struct {
	checks map[string]simplemedia.Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Each check is pinged on
// /health/detailed under its map key.
func NewHealthHandler(checks map[string]simplemedia.Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checks: checks, logger: logger}
}

// Health always reports ok while the process serves requests
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Detailed pings every dependency and answers 503 if any is down
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := map[string]string{"status": "ok"}
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "Health check failed", "dependency", name, "error", err)
			resp[name] = "unavailable"
			resp["status"] = "degraded"
			continue
		}
		resp[name] = "ok"
	}

	if resp["status"] != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
