package aggregator

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/indicator"
)

type stubIndicator struct {
	name string
	dir  domain.Direction
	err  error
}

func (s stubIndicator) Name() string { return s.name }

func (s stubIndicator) ProduceVote(domain.MarketWindow) (indicator.Vote, error) {
	if s.err != nil {
		return indicator.Vote{}, s.err
	}
	return indicator.Vote{Indicator: s.name, Direction: s.dir}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func registryOf(inds ...indicator.Indicator) *indicator.Registry {
	reg := indicator.NewRegistry()
	for _, ind := range inds {
		reg.Register(ind)
	}
	return reg
}

func testWindow() domain.MarketWindow {
	return domain.MarketWindow{
		AssetID:     "EURUSD",
		GeneratedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateWeightedVote(t *testing.T) {
	reg := registryOf(
		stubIndicator{name: "rsi", dir: domain.DirectionUp},
		stubIndicator{name: "macd", dir: domain.DirectionUp},
		stubIndicator{name: "volume", dir: domain.DirectionDown},
	)
	weights := map[string]float64{"rsi": 2.0, "macd": 1.0, "volume": 0.5}
	agg := New(reg, weights, 0.5, testLogger())

	sig := agg.Evaluate(testWindow())

	// (2.0 + 1.0 - 0.5) / 3.5
	assert.Equal(t, domain.DirectionUp, sig.Direction)
	assert.InDelta(t, 2.5/3.5, sig.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"rsi", "macd"}, sig.Contributing)
	assert.Equal(t, "EURUSD", sig.AssetID)
}

func TestEvaluateDeterministic(t *testing.T) {
	reg := registryOf(
		stubIndicator{name: "rsi", dir: domain.DirectionUp},
		stubIndicator{name: "macd", dir: domain.DirectionDown},
		stubIndicator{name: "volume", dir: domain.DirectionUp},
	)
	weights := map[string]float64{"rsi": 1.0, "macd": 1.0, "volume": 1.0}
	agg := New(reg, weights, 0.1, testLogger())

	win := testWindow()
	first := agg.Evaluate(win)
	second := agg.Evaluate(win)

	assert.Equal(t, first.Direction, second.Direction)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Contributing, second.Contributing)
}

func TestEvaluateBelowThreshold(t *testing.T) {
	reg := registryOf(
		stubIndicator{name: "rsi", dir: domain.DirectionUp},
		stubIndicator{name: "macd", dir: domain.DirectionNone},
	)
	weights := map[string]float64{"rsi": 1.0, "macd": 3.0}
	agg := New(reg, weights, 0.6, testLogger())

	sig := agg.Evaluate(testWindow())

	// 1.0/4.0 = 0.25 < 0.6, so the direction is suppressed.
	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.InDelta(t, 0.25, sig.Confidence, 1e-9)
	assert.Empty(t, sig.Contributing)
	assert.False(t, sig.Actionable())
}

func TestEvaluateBalancedVotesCancel(t *testing.T) {
	reg := registryOf(
		stubIndicator{name: "rsi", dir: domain.DirectionUp},
		stubIndicator{name: "macd", dir: domain.DirectionDown},
	)
	weights := map[string]float64{"rsi": 1.0, "macd": 1.0}
	agg := New(reg, weights, 0.0, testLogger())

	sig := agg.Evaluate(testWindow())

	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Zero(t, sig.Confidence)
}

func TestEvaluateFailingIndicatorIsolated(t *testing.T) {
	reg := registryOf(
		stubIndicator{name: "rsi", dir: domain.DirectionUp},
		stubIndicator{name: "macd", err: errors.New("short window")},
	)
	weights := map[string]float64{"rsi": 1.0, "macd": 5.0}
	agg := New(reg, weights, 0.5, testLogger())

	sig := agg.Evaluate(testWindow())

	// The failing indicator's weight drops out entirely.
	assert.Equal(t, domain.DirectionUp, sig.Direction)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
}

func TestEvaluateUnweightedIndicatorIgnored(t *testing.T) {
	reg := registryOf(
		stubIndicator{name: "rsi", dir: domain.DirectionUp},
		stubIndicator{name: "news", dir: domain.DirectionDown},
	)
	weights := map[string]float64{"rsi": 1.0}
	agg := New(reg, weights, 0.5, testLogger())

	sig := agg.Evaluate(testWindow())

	assert.Equal(t, domain.DirectionUp, sig.Direction)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
}

func TestRecentSignals(t *testing.T) {
	reg := registryOf(stubIndicator{name: "rsi", dir: domain.DirectionUp})
	agg := New(reg, map[string]float64{"rsi": 1.0}, 0.5, testLogger())

	for i := 0; i < 3; i++ {
		win := testWindow()
		win.GeneratedAt = win.GeneratedAt.Add(time.Duration(i) * time.Minute)
		agg.Evaluate(win)
	}

	recent := agg.RecentSignals(2)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].GeneratedAt.After(recent[1].GeneratedAt))

	all := agg.RecentSignals(100)
	assert.Len(t, all, 3)
}

func TestRuntimeUpdates(t *testing.T) {
	reg := registryOf(stubIndicator{name: "rsi", dir: domain.DirectionUp})
	agg := New(reg, map[string]float64{"rsi": 1.0}, 0.5, testLogger())

	agg.SetThreshold(1.5)
	sig := agg.Evaluate(testWindow())
	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Equal(t, 1.5, agg.Threshold())

	agg.SetWeights(map[string]float64{"rsi": 2.0})
	assert.Equal(t, map[string]float64{"rsi": 2.0}, agg.Weights())
}
