// Package aggregator combines per-indicator votes into one directional,
// confidence-scored signal per asset per tick. Evaluation is deterministic:
// the same window and the same weight table always produce the same signal.
package aggregator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/indicator"
)

// Aggregator runs every registered indicator against a market window and
// folds the votes into a single weighted signal. Weights and threshold can
// be swapped at runtime by the settings API.
type Aggregator struct {
	registry *indicator.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	weights   map[string]float64
	threshold float64

	recentSignals []domain.Signal
	recentLimit   int
}

// New creates an Aggregator. Indicators missing from the weight table carry
// zero weight and never influence the outcome.
func New(registry *indicator.Registry, weights map[string]float64, threshold float64, logger *slog.Logger) *Aggregator {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Aggregator{
		registry:    registry,
		weights:     w,
		threshold:   threshold,
		logger:      logger.With(slog.String("component", "aggregator")),
		recentLimit: 500,
	}
}

// Evaluate produces the signal for one asset window. A failing indicator is
// logged and excluded from this evaluation only; the remaining votes still
// count. When the weighted confidence stays below the threshold the signal
// direction is none, which keeps it out of the allocator.
func (a *Aggregator) Evaluate(win domain.MarketWindow) domain.Signal {
	a.mu.Lock()
	weights := a.weights
	threshold := a.threshold
	a.mu.Unlock()

	var (
		sum         float64
		totalWeight float64
		votes       []indicator.Vote
	)

	for _, ind := range a.registry.All() {
		weight, ok := weights[ind.Name()]
		if !ok || weight <= 0 {
			continue
		}
		v, err := ind.ProduceVote(win)
		if err != nil {
			a.logger.Warn("indicator vote failed",
				slog.String("asset_id", win.AssetID),
				slog.String("indicator", ind.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		totalWeight += weight
		switch v.Direction {
		case domain.DirectionUp:
			sum += weight
		case domain.DirectionDown:
			sum -= weight
		}
		votes = append(votes, v)
	}

	sig := domain.Signal{
		AssetID:     win.AssetID,
		Direction:   domain.DirectionNone,
		GeneratedAt: win.GeneratedAt,
	}
	if sig.GeneratedAt.IsZero() {
		sig.GeneratedAt = time.Now()
	}

	if totalWeight > 0 {
		switch {
		case sum > 0:
			sig.Direction = domain.DirectionUp
		case sum < 0:
			sig.Direction = domain.DirectionDown
		}
		if sum < 0 {
			sig.Confidence = -sum / totalWeight
		} else {
			sig.Confidence = sum / totalWeight
		}
	}

	for _, v := range votes {
		if v.Direction != domain.DirectionNone && v.Direction == sig.Direction {
			sig.Contributing = append(sig.Contributing, v.Indicator)
		}
	}

	if sig.Confidence < threshold {
		sig.Direction = domain.DirectionNone
		sig.Contributing = nil
	}

	a.record(sig)

	if sig.Actionable() {
		a.logger.Info("signal emitted",
			slog.String("asset_id", sig.AssetID),
			slog.String("direction", string(sig.Direction)),
			slog.Float64("confidence", sig.Confidence),
			slog.Int("contributing", len(sig.Contributing)),
		)
	} else {
		a.logger.Debug("signal below threshold",
			slog.String("asset_id", sig.AssetID),
			slog.Float64("confidence", sig.Confidence),
		)
	}
	return sig
}

// SetWeights replaces the weight table.
func (a *Aggregator) SetWeights(weights map[string]float64) {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	a.mu.Lock()
	a.weights = w
	a.mu.Unlock()
	a.logger.Info("weights updated", slog.Int("indicators", len(w)))
}

// SetThreshold replaces the confidence threshold.
func (a *Aggregator) SetThreshold(threshold float64) {
	a.mu.Lock()
	a.threshold = threshold
	a.mu.Unlock()
	a.logger.Info("threshold updated", slog.Float64("threshold", threshold))
}

// Weights returns a copy of the current weight table.
func (a *Aggregator) Weights() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.weights))
	for k, v := range a.weights {
		out[k] = v
	}
	return out
}

// Threshold returns the current confidence threshold.
func (a *Aggregator) Threshold() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threshold
}

// RecentSignals returns up to limit signals in reverse chronological order
// (newest first).
func (a *Aggregator) RecentSignals(limit int) []domain.Signal {
	if limit <= 0 {
		limit = 20
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.recentSignals)
	if n == 0 {
		return []domain.Signal{}
	}
	if limit > n {
		limit = n
	}
	out := make([]domain.Signal, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		sig := a.recentSignals[i]
		if sig.Contributing != nil {
			sig.Contributing = append([]string(nil), sig.Contributing...)
		}
		out = append(out, sig)
	}
	return out
}

func (a *Aggregator) record(sig domain.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recentSignals = append(a.recentSignals, sig)
	if overflow := len(a.recentSignals) - a.recentLimit; overflow > 0 {
		a.recentSignals = append([]domain.Signal(nil), a.recentSignals[overflow:]...)
	}
}
