// Package server exposes the engine over HTTP and WebSocket for the
// dashboard: read endpoints for state and history, control endpoints for
// the kill switch and tuning, and a hub pushing live events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/server/handler"
	"github.com/alanyoungcy/optionbot/internal/server/middleware"
	"github.com/alanyoungcy/optionbot/internal/server/ws"
)

// Config carries the listener and middleware settings.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards every endpoint except /api/health. Empty disables auth.
	APIKey string

	// Limiter applies a per-client request cap when non-nil.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil entries
// are skipped, which is how server-only mode drops the trading surfaces.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
	Signals   *handler.SignalHandler
	Assets    *handler.AssetHandler
	Control   *handler.ControlHandler
	Settings  *handler.SettingsHandler
	Candles   *handler.CandleHandler
}

// Server is the dashboard HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain: CORS,
// then request logging, then rate limiting, then auth.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Positions != nil {
		mux.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
		mux.HandleFunc("GET /api/positions/history", handlers.Positions.ListHistory)
	}
	if handlers.Signals != nil {
		mux.HandleFunc("GET /api/signals/recent", handlers.Signals.ListRecent)
		mux.HandleFunc("GET /api/analyze/{asset}", handlers.Signals.Analyze)
	}
	if handlers.Assets != nil {
		mux.HandleFunc("GET /api/assets", handlers.Assets.ListAssets)
		mux.HandleFunc("PUT /api/assets/{id}/enabled", handlers.Assets.SetEnabled)
	}
	if handlers.Control != nil {
		mux.HandleFunc("POST /api/control/kill", handlers.Control.Kill)
		mux.HandleFunc("POST /api/control/resume", handlers.Control.Resume)
	}
	if handlers.Settings != nil {
		mux.HandleFunc("GET /api/settings", handlers.Settings.GetSettings)
		mux.HandleFunc("PUT /api/settings", handlers.Settings.UpdateSettings)
	}
	if handlers.Candles != nil {
		mux.HandleFunc("GET /api/candles/{asset}", handlers.Candles.ListCandles)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
