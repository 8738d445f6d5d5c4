package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint, including the state of
// every registered dependency.
type HealthHandler struct {
	deps   []namedPinger
	logger *slog.Logger
}

type namedPinger struct {
	name   string
	pinger Pinger
}

// NewHealthHandler creates a HealthHandler with no dependencies registered.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// Register adds a named dependency to the health check. Call during wiring,
// before the server starts.
func (h *HealthHandler) Register(name string, p Pinger) {
	h.deps = append(h.deps, namedPinger{name: name, pinger: p})
}

// HealthCheck pings every registered dependency and reports ok or degraded.
// A degraded engine still answers 200 so load balancers keep routing to the
// dashboard while a single backend is down.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.deps))
	for _, d := range h.deps {
		if err := d.pinger.Ping(ctx); err != nil {
			status = "degraded"
			deps[d.name] = err.Error()
			h.logger.WarnContext(ctx, "health check dependency failed",
				slog.String("dependency", d.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[d.name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
