package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/feed"
	"github.com/alanyoungcy/optionbot/internal/indicator"
)

type fakeFetcher struct {
	bars map[string][]domain.Candle
	errs map[string]error
}

func (f *fakeFetcher) GetCandles(_ context.Context, assetID string, _ time.Duration, limit int) ([]domain.Candle, error) {
	if err := f.errs[assetID]; err != nil {
		return nil, err
	}
	bars := f.bars[assetID]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

type countingCandleCache struct {
	mu     sync.Mutex
	pushes map[string]int
}

func (c *countingCandleCache) Push(_ context.Context, assetID string, _ domain.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushes == nil {
		c.pushes = make(map[string]int)
	}
	c.pushes[assetID]++
	return nil
}

func (c *countingCandleCache) Recent(context.Context, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func historyBars(n int) []domain.Candle {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	bars := make([]domain.Candle, 0, n)
	price := 1.1000
	for i := 0; i < n; i++ {
		s := start.Add(time.Duration(i) * time.Minute)
		bars = append(bars, domain.Candle{
			Open: price, High: price + 0.0005, Low: price - 0.0002, Close: price + 0.0004,
			Volume: 10, Start: s, End: s.Add(time.Minute),
		})
		price += 0.0004
	}
	return bars
}

func testBackfillWindows() *feed.Windows {
	return feed.NewWindows(feed.WindowsConfig{
		Interval: time.Minute,
		Size:     40,
		Params: indicator.Params{
			RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		},
	}, nil, slog.New(slog.DiscardHandler))
}

func TestBackfillSeedsWindowsAndCache(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]domain.Candle{
		"EURUSD": historyBars(40),
		"GBPUSD": historyBars(40),
	}}
	windows := testBackfillWindows()
	cache := &countingCandleCache{}

	bf := NewBackfill(BackfillConfig{Assets: []string{"EURUSD", "GBPUSD"}},
		fetcher, windows, cache, slog.New(slog.DiscardHandler))
	require.NoError(t, bf.Run(context.Background()))

	assert.True(t, windows.Ready("EURUSD"))
	assert.True(t, windows.Ready("GBPUSD"))
	assert.Equal(t, 40, cache.pushes["EURUSD"])
	assert.Equal(t, 40, cache.pushes["GBPUSD"])
}

func TestBackfillSkipsFailingAsset(t *testing.T) {
	fetcher := &fakeFetcher{
		bars: map[string][]domain.Candle{"EURUSD": historyBars(40)},
		errs: map[string]error{"BADPAIR": errors.New("unknown symbol")},
	}
	windows := testBackfillWindows()

	bf := NewBackfill(BackfillConfig{Assets: []string{"BADPAIR", "EURUSD"}},
		fetcher, windows, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, bf.Run(context.Background()))

	assert.True(t, windows.Ready("EURUSD"))
	assert.False(t, windows.Ready("BADPAIR"))
}

func TestBackfillAllAssetsFailing(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		"EURUSD": errors.New("api down"),
		"GBPUSD": errors.New("api down"),
	}}
	bf := NewBackfill(BackfillConfig{Assets: []string{"EURUSD", "GBPUSD"}},
		fetcher, testBackfillWindows(), nil, slog.New(slog.DiscardHandler))

	err := bf.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 assets")
}

func TestBackfillRequiresAssets(t *testing.T) {
	bf := NewBackfill(BackfillConfig{}, &fakeFetcher{}, testBackfillWindows(), nil, slog.New(slog.DiscardHandler))
	require.Error(t, bf.Run(context.Background()))
}
