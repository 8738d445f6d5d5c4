package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/feed"
)

// CandleFetcher provides historical bars, normally the broker REST client.
type CandleFetcher interface {
	GetCandles(ctx context.Context, assetID string, interval time.Duration, limit int) ([]domain.Candle, error)
}

// BackfillConfig controls a historical candle backfill run.
type BackfillConfig struct {
	Assets   []string
	Interval time.Duration // bar interval, default 1m
	Bars     int           // bars per asset, default 40
}

func (c BackfillConfig) withDefaults() BackfillConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Bars <= 0 {
		c.Bars = 40
	}
	return c
}

// Backfill loads historical candles from the broker into the in-memory
// windows and the Redis candle cache, so indicators are ready to evaluate
// without waiting for live ticks to accumulate.
type Backfill struct {
	cfg     BackfillConfig
	fetcher CandleFetcher
	windows *feed.Windows
	candles domain.CandleCache
	logger  *slog.Logger
}

// NewBackfill creates a Backfill. The candle cache may be nil when only the
// in-memory windows need seeding.
func NewBackfill(cfg BackfillConfig, fetcher CandleFetcher, windows *feed.Windows, candles domain.CandleCache, logger *slog.Logger) *Backfill {
	return &Backfill{
		cfg:     cfg.withDefaults(),
		fetcher: fetcher,
		windows: windows,
		candles: candles,
		logger:  logger,
	}
}

// Run fetches the configured number of bars for every asset. A failing
// asset is logged and skipped so one bad symbol cannot block the rest; Run
// returns an error only when every asset failed.
func (b *Backfill) Run(ctx context.Context) error {
	if len(b.cfg.Assets) == 0 {
		return fmt.Errorf("pipeline: backfill has no assets configured")
	}

	var failed int
	for _, assetID := range b.cfg.Assets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		candles, err := b.fetcher.GetCandles(ctx, assetID, b.cfg.Interval, b.cfg.Bars)
		if err != nil {
			failed++
			b.logger.Warn("candle backfill failed for asset",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(candles) == 0 {
			b.logger.Warn("candle backfill returned no bars", slog.String("asset_id", assetID))
			continue
		}

		b.windows.Seed(assetID, candles)

		if b.candles != nil {
			for _, c := range candles {
				if err := b.candles.Push(ctx, assetID, c); err != nil {
					b.logger.Warn("candle cache push failed",
						slog.String("asset_id", assetID),
						slog.String("error", err.Error()),
					)
					break
				}
			}
		}

		b.logger.Info("backfilled candles",
			slog.String("asset_id", assetID),
			slog.Int("bars", len(candles)),
			slog.Bool("window_ready", b.windows.Ready(assetID)),
		)
	}

	if failed == len(b.cfg.Assets) {
		return fmt.Errorf("pipeline: backfill failed for all %d assets", failed)
	}
	return nil
}
