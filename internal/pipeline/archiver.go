package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optionbot/internal/cron"
	"github.com/alanyoungcy/optionbot/internal/domain"
)

// PositionCleaner deletes settled positions that have been archived.
type PositionCleaner interface {
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeLogCleaner deletes trade log rows that have been archived.
type TradeLogCleaner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves settled positions and trade log rows older than the
// retention window from Postgres to S3 cold storage, then deletes the
// archived rows. Deletion only runs after the upload has been verified,
// which the blob archiver guarantees before returning a count.
type Archiver struct {
	blobArchiver  domain.Archiver
	positions     PositionCleaner
	trades        TradeLogCleaner
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver assembles the archive-then-prune pipeline.
func NewArchiver(
	blobArchiver domain.Archiver,
	positions PositionCleaner,
	trades TradeLogCleaner,
	retentionDays int,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		positions:     positions,
		trades:        trades,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive pass. The cutoff is retentionDays before
// now; anything settled earlier is uploaded and then removed from the
// primary store.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	posArchived, err := a.blobArchiver.ArchivePositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving positions before %v: %w", cutoff, err)
	}
	var posDeleted int64
	if posArchived > 0 {
		posDeleted, err = a.positions.DeleteSettledBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("deleting archived positions before %v: %w", cutoff, err)
		}
		if posDeleted != posArchived {
			// Late settlements can land between the query and the delete.
			a.logger.Warn("position archive/delete count mismatch",
				slog.Int64("archived", posArchived),
				slog.Int64("deleted", posDeleted),
			)
		}
	}

	tradesArchived, err := a.blobArchiver.ArchiveTradeLog(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trade log before %v: %w", cutoff, err)
	}
	var tradesDeleted int64
	if tradesArchived > 0 {
		tradesDeleted, err = a.trades.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("deleting archived trade log before %v: %w", cutoff, err)
		}
	}

	a.logger.Info("archive run complete",
		slog.Int64("positions_archived", posArchived),
		slog.Int64("positions_deleted", posDeleted),
		slog.Int64("trades_archived", tradesArchived),
		slog.Int64("trades_deleted", tradesDeleted),
	)

	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. The expression uses the standard 5-field format; "0 3 1 * *"
// runs at 03:00 on the first of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := cron.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing archive cron %q: %w", cronExpr, err)
	}

	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.Next(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("computing next archive run: %w", err)
		}

		a.logger.Info("archiver waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
