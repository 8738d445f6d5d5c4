// Package app provides the top-level application lifecycle for the trading
// engine. It wires together all dependencies (stores, caches, cold storage,
// services, the session controller, and notifications) and starts the
// goroutines for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/optionbot/internal/config"
)

// App owns the process lifecycle: configuration, the root logger, and the
// cleanup stack that unwinds on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New builds an App around the loaded configuration and the root logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// runners maps each operating mode to its entry point.
func (a *App) runners() map[string]func(context.Context, *Dependencies) error {
	return map[string]func(context.Context, *Dependencies) error{
		"trade":    a.TradeMode,
		"server":   a.ServerMode,
		"archive":  a.ArchiveMode,
		"backfill": a.BackfillMode,
		"all":      a.AllMode,
	}
}

// Run wires the dependency graph and hands control to the mode's entry
// point, blocking until the context is cancelled. The mode name is checked
// first so a typo fails before any connection is opened.
func (a *App) Run(ctx context.Context) error {
	run, ok := a.runners()[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("account_type", a.cfg.Broker.AccountType),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return run(ctx, deps)
}

// Close unwinds the cleanup stack, newest first. Calling it again after the
// stack is drained is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
