// Package feed maintains the per-asset market picture: live quotes folded
// into fixed-interval bars, plus the derived indicator values, packaged as
// immutable windows for signal evaluation.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/indicator"
)

// WindowsConfig controls bar building and window assembly.
type WindowsConfig struct {
	// Interval is the bar length, one minute for this product.
	Interval time.Duration
	// Size is how many closed bars are kept per asset.
	Size int
	// Params feeds the RSI and MACD computations attached to each window.
	Params indicator.Params
}

func (c WindowsConfig) withDefaults() WindowsConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Size <= 0 {
		c.Size = 40
	}
	return c
}

// Windows builds bars from the live quote stream and assembles evaluation
// windows on demand. Closed bars are mirrored into the candle cache so
// restarts and the dashboard share the same history.
type Windows struct {
	cfg    WindowsConfig
	cache  domain.CandleCache
	logger *slog.Logger

	mu      sync.RWMutex
	bars    map[string][]domain.Candle // closed bars, oldest first
	current map[string]*domain.Candle  // bar under construction
	news    map[string]domain.Direction
}

// NewWindows creates a Windows store. The cache may be nil, in which case
// closed bars live only in memory.
func NewWindows(cfg WindowsConfig, cache domain.CandleCache, logger *slog.Logger) *Windows {
	return &Windows{
		cfg:     cfg.withDefaults(),
		cache:   cache,
		logger:  logger.With(slog.String("component", "feed_windows")),
		bars:    make(map[string][]domain.Candle),
		current: make(map[string]*domain.Candle),
		news:    make(map[string]domain.Direction),
	}
}

// Seed replaces the asset's closed bars with historical candles, oldest
// first. Used to warm windows from the broker's candle history before the
// first tick.
func (w *Windows) Seed(assetID string, candles []domain.Candle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	keep := candles
	if len(keep) > w.cfg.Size {
		keep = keep[len(keep)-w.cfg.Size:]
	}
	w.bars[assetID] = append([]domain.Candle(nil), keep...)
	delete(w.current, assetID)

	w.logger.Info("windows seeded",
		slog.String("asset_id", assetID),
		slog.Int("bars", len(keep)),
	)
}

// Ingest folds one live quote into the asset's building bar. Crossing an
// interval boundary closes the previous bar. Quotes older than the bar
// under construction are dropped.
func (w *Windows) Ingest(ctx context.Context, q domain.Quote) {
	if q.AssetID == "" || q.Price <= 0 {
		return
	}
	ts := q.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	bucket := ts.Truncate(w.cfg.Interval)

	var closed *domain.Candle

	w.mu.Lock()
	cur := w.current[q.AssetID]
	switch {
	case cur == nil:
		w.current[q.AssetID] = newBar(q.Price, bucket, w.cfg.Interval)
	case bucket.After(cur.Start):
		done := *cur
		w.bars[q.AssetID] = append(w.bars[q.AssetID], done)
		if overflow := len(w.bars[q.AssetID]) - w.cfg.Size; overflow > 0 {
			w.bars[q.AssetID] = append([]domain.Candle(nil), w.bars[q.AssetID][overflow:]...)
		}
		closed = &done
		w.current[q.AssetID] = newBar(q.Price, bucket, w.cfg.Interval)
	case bucket.Before(cur.Start):
		// Stale tick from before the open bar.
	default:
		if q.Price > cur.High {
			cur.High = q.Price
		}
		if q.Price < cur.Low {
			cur.Low = q.Price
		}
		cur.Close = q.Price
		cur.Volume++
	}
	w.mu.Unlock()

	if closed != nil && w.cache != nil {
		if err := w.cache.Push(ctx, q.AssetID, *closed); err != nil {
			w.logger.Debug("candle cache push failed",
				slog.String("asset_id", q.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// newBar starts a bar from its first tick. Volume counts ticks; spot FX
// quotes carry no traded size.
func newBar(price float64, start time.Time, interval time.Duration) *domain.Candle {
	return &domain.Candle{
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: 1,
		Start:  start,
		End:    start.Add(interval),
	}
}

// SetNewsFlag sets an externally supplied directional bias for the asset.
// DirectionNone clears it.
func (w *Windows) SetNewsFlag(assetID string, dir domain.Direction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if dir == domain.DirectionNone {
		delete(w.news, assetID)
		return
	}
	w.news[assetID] = dir
}

// Ready reports whether the asset has enough closed bars for a full
// indicator evaluation.
func (w *Windows) Ready(assetID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bars[assetID]) >= w.cfg.Params.MACDSlow+w.cfg.Params.MACDSignal
}

// Window assembles an immutable evaluation window for one asset: a copy of
// its closed bars plus the RSI and MACD values derived from them. Partial
// indicator coverage is fine, the indicators guard their own minimums.
func (w *Windows) Window(assetID string, at time.Time) (domain.MarketWindow, error) {
	w.mu.RLock()
	src := w.bars[assetID]
	if len(src) == 0 {
		w.mu.RUnlock()
		return domain.MarketWindow{}, fmt.Errorf("feed: window %s: no bars: %w", assetID, domain.ErrNotFound)
	}
	candles := make([]domain.Candle, len(src))
	copy(candles, src)
	news := w.news[assetID]
	w.mu.RUnlock()

	win := domain.MarketWindow{
		AssetID:     assetID,
		Candles:     candles,
		NewsFlag:    news,
		GeneratedAt: at,
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	p := w.cfg.Params
	if rsi, err := indicator.ComputeRSI(closes, p.RSIPeriod); err == nil {
		win.RSI = rsi
	}
	if m, err := indicator.ComputeMACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); err == nil {
		win.MACDLine = m.Line
		win.MACDSignal = m.Signal
		win.MACDHist = m.Hist
		win.PrevMACDHist = m.PrevHist
	}
	return win, nil
}

// RecentCandles returns up to limit closed bars for the asset, oldest
// first. The slice is safe to mutate.
func (w *Windows) RecentCandles(assetID string, limit int) []domain.Candle {
	w.mu.RLock()
	defer w.mu.RUnlock()

	src := w.bars[assetID]
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]domain.Candle, len(src))
	copy(out, src)
	return out
}
