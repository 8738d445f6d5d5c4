// Package allocator turns one tick's actionable signals into sized,
// reserved orders. Sizing is confidence-weighted and every stake is
// admitted through the risk ledger before an order exists at all.
package allocator

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/risk"
)

// Config carries the allocator parameters.
type Config struct {
	// MinStake is the broker's smallest accepted stake. Allocations that
	// size below it are skipped, not rounded up.
	MinStake float64
	// MaxExposureFrac mirrors the ledger cap and drives the per-asset
	// ceiling. Same value as the ledger's, wired from one config key.
	MaxExposureFrac float64
	// Expiration is stamped on every order, one minute for this product.
	Expiration time.Duration
}

// Allocator sequences stake sizing for a tick. It runs strictly after
// signal evaluation and never concurrently with itself.
type Allocator struct {
	cfg    Config
	ledger *risk.Ledger
	logger *slog.Logger
}

// New creates an Allocator bound to the given ledger.
func New(cfg Config, ledger *risk.Ledger, logger *slog.Logger) *Allocator {
	return &Allocator{
		cfg:    cfg,
		ledger: ledger,
		logger: logger.With(slog.String("component", "allocator")),
	}
}

// Allocate sizes and reserves stakes for the tick's signals, strongest
// conviction first. Signals with direction none are ignored. A capacity
// rejection skips just that signal; a halt abandons the rest of the tick.
// Returned orders carry live reservations the caller must settle or
// release.
func (a *Allocator) Allocate(signals []domain.Signal, now time.Time) []domain.Order {
	actionable := make([]domain.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Actionable() {
			actionable = append(actionable, sig)
		}
	}
	if len(actionable) == 0 {
		return nil
	}

	// Strongest first; ties break on asset ID so replays allocate
	// identically.
	sort.Slice(actionable, func(i, j int) bool {
		if actionable[i].Confidence != actionable[j].Confidence {
			return actionable[i].Confidence > actionable[j].Confidence
		}
		return actionable[i].AssetID < actionable[j].AssetID
	})

	// The cap subdivides the same ceiling Reserve enforces, so both are
	// based on the day-start balance.
	snap := a.ledger.Snapshot()
	perAssetCap := a.cfg.MaxExposureFrac * snap.DailyStartBalance / float64(len(actionable))

	orders := make([]domain.Order, 0, len(actionable))
	for _, sig := range actionable {
		state := a.ledger.Snapshot()
		remaining := a.cfg.MaxExposureFrac*state.DailyStartBalance - state.OpenExposureTotal
		if remaining < 0 {
			remaining = 0
		}

		stake := math.Floor(math.Min(perAssetCap, remaining*sig.Confidence)*100) / 100
		if stake < a.cfg.MinStake {
			a.logger.Debug("allocation below minimum stake",
				slog.String("asset_id", sig.AssetID),
				slog.Float64("stake", stake),
			)
			continue
		}

		token, err := a.ledger.Reserve(sig.AssetID, stake)
		if err != nil {
			if errors.Is(err, domain.ErrTradingHalted) {
				a.logger.Info("allocation stopped, trading halted",
					slog.String("asset_id", sig.AssetID),
					slog.Int("allocated", len(orders)),
				)
				return orders
			}
			if errors.Is(err, domain.ErrCapacityExceeded) {
				a.logger.Debug("allocation skipped, no capacity",
					slog.String("asset_id", sig.AssetID),
					slog.Float64("stake", stake),
				)
				continue
			}
			a.logger.Warn("reserve failed",
				slog.String("asset_id", sig.AssetID),
				slog.String("error", err.Error()),
			)
			continue
		}

		orders = append(orders, domain.Order{
			AssetID:    sig.AssetID,
			Direction:  sig.Direction,
			Stake:      stake,
			Expiry:     a.cfg.Expiration,
			Token:      token,
			Confidence: sig.Confidence,
			CreatedAt:  now,
		})
	}

	if len(orders) > 0 {
		a.logger.Info("tick allocated",
			slog.Int("signals", len(actionable)),
			slog.Int("orders", len(orders)),
		)
	}
	return orders
}
