package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// CandleSource serves closed bars from memory. The in-process window store
// implements it; the redis cache is the fallback for bars built before the
// last restart.
type CandleSource interface {
	RecentCandles(assetID string, limit int) []domain.Candle
}

// QuoteService serves latest-quote and candle reads for the dashboard.
type QuoteService struct {
	quotes  domain.QuoteCache
	candles domain.CandleCache
	windows CandleSource
	logger  *slog.Logger
}

// NewQuoteService creates a QuoteService. windows may be nil in server-only
// mode, in which case candle reads come entirely from the cache.
func NewQuoteService(
	quotes domain.QuoteCache,
	candles domain.CandleCache,
	windows CandleSource,
	logger *slog.Logger,
) *QuoteService {
	return &QuoteService{
		quotes:  quotes,
		candles: candles,
		windows: windows,
		logger:  logger,
	}
}

// GetQuote returns the latest cached quote and its timestamp for one asset.
func (s *QuoteService) GetQuote(ctx context.Context, assetID string) (float64, time.Time, error) {
	price, ts, err := s.quotes.GetQuote(ctx, assetID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("quote_service: get quote for %q: %w", assetID, err)
	}
	return price, ts, nil
}

// GetQuotes returns the latest cached quotes for multiple assets. Missing
// assets are omitted from the returned map.
func (s *QuoteService) GetQuotes(ctx context.Context, assetIDs []string) (map[string]float64, error) {
	prices, err := s.quotes.GetQuotes(ctx, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("quote_service: get quotes: %w", err)
	}
	return prices, nil
}

// RecentCandles returns up to limit closed bars for the asset, oldest first.
// In-memory bars win; the cache fills in when this process has none.
func (s *QuoteService) RecentCandles(ctx context.Context, assetID string, limit int) ([]domain.Candle, error) {
	if s.windows != nil {
		if bars := s.windows.RecentCandles(assetID, limit); len(bars) > 0 {
			return bars, nil
		}
	}

	bars, err := s.candles.Recent(ctx, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("quote_service: recent candles for %q: %w", assetID, err)
	}
	s.logger.DebugContext(ctx, "quote_service: candles served from cache",
		slog.String("asset_id", assetID),
		slog.Int("bars", len(bars)),
	)
	return bars, nil
}
