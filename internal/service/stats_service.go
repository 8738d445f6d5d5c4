package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// StatsService keeps in-memory win/loss tallies for the current trading day,
// session-wide and per asset. It is fed by the position service on each
// settlement and cleared at the daily reset.
type StatsService struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats domain.SessionStats
}

// NewStatsService creates an empty StatsService.
func NewStatsService(logger *slog.Logger) *StatsService {
	return &StatsService{
		logger: logger,
		stats:  domain.SessionStats{ByAsset: make(map[string]domain.AssetStats)},
	}
}

// Record folds one settled trade into the tallies.
func (s *StatsService) Record(rec domain.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Trades++
	s.stats.NetPnL += rec.PnL

	asset := s.stats.ByAsset[rec.AssetID]
	asset.AssetID = rec.AssetID
	asset.NetPnL += rec.PnL

	switch rec.Outcome {
	case domain.OutcomeWon:
		s.stats.Wins++
		asset.Wins++
	case domain.OutcomeLost:
		s.stats.Losses++
		asset.Losses++
	default:
		s.stats.Voids++
		asset.Voids++
	}
	s.stats.ByAsset[rec.AssetID] = asset
}

// Snapshot returns a copy of the current tallies.
func (s *StatsService) Snapshot() domain.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.ByAsset = make(map[string]domain.AssetStats, len(s.stats.ByAsset))
	for k, v := range s.stats.ByAsset {
		out.ByAsset[k] = v
	}
	return out
}

// Reset clears all tallies. Wired to the daily reset hook.
func (s *StatsService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = domain.SessionStats{ByAsset: make(map[string]domain.AssetStats)}
}

// Warm rebuilds the tallies from trade log rows settled at or after since.
// Called at startup so a mid-day restart does not zero the dashboard.
func (s *StatsService) Warm(ctx context.Context, trades domain.TradeLogStore, since time.Time) error {
	records, err := trades.List(ctx, domain.ListOpts{Since: &since})
	if err != nil {
		return fmt.Errorf("stats_service: warm from trade log: %w", err)
	}
	for _, rec := range records {
		s.Record(rec)
	}
	s.logger.InfoContext(ctx, "stats_service: tallies warmed",
		slog.Int("records", len(records)),
		slog.Time("since", since),
	)
	return nil
}
