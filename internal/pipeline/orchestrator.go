// Package pipeline coordinates the long-running background loops: the live
// quote feed, the trading session, candle backfill, and cold-storage
// archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// QuoteFeed is the live market data loop, normally feed.StreamFeed.
type QuoteFeed interface {
	Run(ctx context.Context) error
}

// TradingSession is the tick/reset loop, normally session.Controller.
type TradingSession interface {
	Run(ctx context.Context) error
}

// Orchestrator runs the engine's background loops as one errgroup. Nil
// components are skipped, which is how the run modes select what to start:
// trade mode has no archiver, archive mode has no feed or session.
type Orchestrator struct {
	feed        QuoteFeed
	session     TradingSession
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	feed QuoteFeed,
	session TradingSession,
	archiver *Archiver,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		feed:        feed,
		session:     session,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger,
	}
}

// Run starts the configured loops and blocks until the context is cancelled
// or one of them fails. A failing loop cancels the shared context so the
// others shut down; context cancellation itself is a clean stop.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.feed != nil {
		g.Go(func() error {
			o.logger.Info("starting quote feed")
			err := o.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("quote feed: %w", err)
		})
	}

	if o.session != nil {
		g.Go(func() error {
			o.logger.Info("starting trading session")
			err := o.session.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("trading session: %w", err)
		})
	}

	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline stopped cleanly")
	return nil
}
