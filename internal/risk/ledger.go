// Package risk owns the account's risk state. All stake reservations,
// settlements and stop decisions pass through a single Ledger so the
// exposure and drawdown invariants hold no matter how many goroutines
// evaluate signals or receive settlements concurrently.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// epsilon absorbs float64 rounding when comparing stakes against caps.
const epsilon = 1e-9

// Config carries the risk parameters, all fractions of the daily start
// balance except the seed.
type Config struct {
	BankSeed        float64
	MaxExposureFrac float64
	StopLossFrac    float64
	StopGainFrac    float64
}

// HaltHook is invoked after the ledger transitions into a halted state.
// It runs outside the ledger mutex, so it may call back into the ledger.
type HaltHook func(reason domain.HaltReason, state domain.RiskState)

// Ledger is the single writer of the account risk state. Reserve is the one
// place stakes are admitted against the exposure cap; Settle is the one
// place realized PnL moves and stop conditions are re-evaluated.
type Ledger struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    domain.RiskState
	pending  map[string]domain.ReservationToken
	haltHook HaltHook
}

// NewLedger seeds the ledger with the configured bank and an empty day.
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	now := time.Now().UTC()
	return &Ledger{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_ledger")),
		state: domain.RiskState{
			BankBalance:         cfg.BankSeed,
			DailyStartBalance:   cfg.BankSeed,
			OpenExposureByAsset: make(map[string]float64),
			DayStartedAt:        now,
		},
		pending: make(map[string]domain.ReservationToken),
	}
}

// SetHaltHook installs the callback fired on every halt transition. Must be
// called before the ledger is shared across goroutines.
func (l *Ledger) SetHaltHook(hook HaltHook) {
	l.haltHook = hook
}

// CanAllocate reports whether a stake of the given size could currently be
// reserved. It is advisory: the answer can be stale by the time Reserve
// runs, which re-checks under the same lock that mutates state.
func (l *Ledger) CanAllocate(assetID string, stake float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admit(assetID, stake)
}

// Reserve admits a stake against the exposure cap and pins it until Settle
// or Release. This is the only gate: every stake that reaches the broker
// passed through here first.
func (l *Ledger) Reserve(assetID string, stake float64) (domain.ReservationToken, error) {
	if stake <= 0 {
		return domain.ReservationToken{}, fmt.Errorf("risk: reserve %s: stake must be positive, got %f", assetID, stake)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.admit(assetID, stake); err != nil {
		return domain.ReservationToken{}, err
	}

	token := domain.ReservationToken{
		ID:        uuid.NewString(),
		AssetID:   assetID,
		Stake:     stake,
		CreatedAt: time.Now().UTC(),
	}
	l.pending[token.ID] = token
	l.state.OpenExposureTotal += stake
	l.state.OpenExposureByAsset[assetID] += stake

	l.logger.Debug("stake reserved",
		slog.String("asset_id", assetID),
		slog.Float64("stake", stake),
		slog.Float64("open_exposure", l.state.OpenExposureTotal),
	)
	return token, nil
}

// admit checks halt and capacity. Caller holds l.mu.
func (l *Ledger) admit(assetID string, stake float64) error {
	if l.state.TradingHalted {
		return fmt.Errorf("risk: reserve %s: %w (%s)", assetID, domain.ErrTradingHalted, l.state.HaltReason)
	}
	cap := l.cfg.MaxExposureFrac * l.state.DailyStartBalance
	if l.state.OpenExposureTotal+stake > cap+epsilon {
		return fmt.Errorf("risk: reserve %s: stake %.2f would exceed exposure cap %.2f: %w",
			assetID, stake, cap, domain.ErrCapacityExceeded)
	}
	return nil
}

// Release frees a reservation without touching the bank. It is the
// compensating action for a failed submission: afterwards the state is as
// if the reservation never happened.
func (l *Ledger) Release(token domain.ReservationToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.pending[token.ID]
	if !ok {
		return fmt.Errorf("risk: release %s: %w", token.ID, domain.ErrUnknownReservation)
	}
	delete(l.pending, token.ID)
	l.unwind(held)

	l.logger.Debug("stake released",
		slog.String("asset_id", held.AssetID),
		slog.Float64("stake", held.Stake),
	)
	return nil
}

// Settle consumes a reservation against a settlement outcome. Won credits
// the net payout, lost debits the stake, void returns the stake untouched.
// Settling re-evaluates the stop conditions, so a losing streak halts the
// session mid-tick rather than at the next evaluation.
func (l *Ledger) Settle(token domain.ReservationToken, outcome domain.Outcome, payout float64) error {
	l.mu.Lock()

	held, ok := l.pending[token.ID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("risk: settle %s: %w", token.ID, domain.ErrUnknownReservation)
	}
	delete(l.pending, token.ID)
	l.unwind(held)

	switch outcome {
	case domain.OutcomeWon:
		l.state.BankBalance += payout
		l.state.DailyRealizedPnL += payout
	case domain.OutcomeLost:
		l.state.BankBalance -= held.Stake
		l.state.DailyRealizedPnL -= held.Stake
	case domain.OutcomeVoid:
		// Stake returned, no PnL movement.
	default:
		l.mu.Unlock()
		return fmt.Errorf("risk: settle %s: unknown outcome %q", token.ID, outcome)
	}

	reason := l.checkStops()
	halted := reason != domain.HaltReasonNone
	snap := l.state.Clone()
	hook := l.haltHook
	l.mu.Unlock()

	l.logger.Info("stake settled",
		slog.String("asset_id", held.AssetID),
		slog.String("outcome", string(outcome)),
		slog.Float64("stake", held.Stake),
		slog.Float64("payout", payout),
		slog.Float64("daily_pnl", snap.DailyRealizedPnL),
		slog.Float64("bank", snap.BankBalance),
	)
	if halted && hook != nil {
		hook(reason, snap)
	}
	return nil
}

// unwind removes a held reservation's exposure. Caller holds l.mu.
func (l *Ledger) unwind(held domain.ReservationToken) {
	l.state.OpenExposureTotal -= held.Stake
	if l.state.OpenExposureTotal < epsilon {
		l.state.OpenExposureTotal = 0
	}
	l.state.OpenExposureByAsset[held.AssetID] -= held.Stake
	if l.state.OpenExposureByAsset[held.AssetID] < epsilon {
		delete(l.state.OpenExposureByAsset, held.AssetID)
	}
}

// checkStops transitions into a halt when a stop threshold is crossed and
// returns the reason, or "" when no transition happened. Caller holds l.mu.
func (l *Ledger) checkStops() domain.HaltReason {
	if l.state.TradingHalted {
		return domain.HaltReasonNone
	}
	start := l.state.DailyStartBalance
	switch {
	case l.state.DailyRealizedPnL <= -l.cfg.StopLossFrac*start+epsilon && l.state.DailyRealizedPnL < 0:
		l.halt(domain.HaltReasonStopLoss)
		return domain.HaltReasonStopLoss
	case l.state.DailyRealizedPnL >= l.cfg.StopGainFrac*start-epsilon && l.state.DailyRealizedPnL > 0:
		l.halt(domain.HaltReasonStopGain)
		return domain.HaltReasonStopGain
	}
	return domain.HaltReasonNone
}

// halt flips the halted flag. Caller holds l.mu.
func (l *Ledger) halt(reason domain.HaltReason) {
	l.state.TradingHalted = true
	l.state.HaltReason = reason
	l.logger.Warn("trading halted",
		slog.String("reason", string(reason)),
		slog.Float64("daily_pnl", l.state.DailyRealizedPnL),
		slog.Float64("daily_start", l.state.DailyStartBalance),
	)
}

// ForceHalt halts trading regardless of PnL. Used by the kill switch and by
// the session controller on unrecoverable broker errors.
func (l *Ledger) ForceHalt(reason domain.HaltReason) {
	l.mu.Lock()
	alreadyHalted := l.state.TradingHalted
	if !alreadyHalted {
		l.halt(reason)
	}
	snap := l.state.Clone()
	hook := l.haltHook
	l.mu.Unlock()

	if !alreadyHalted && hook != nil {
		hook(reason, snap)
	}
}

// Resume lifts a kill-switch halt. Stop-loss and stop-gain halts stay in
// force until the next daily reset.
func (l *Ledger) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.TradingHalted {
		return nil
	}
	if l.state.HaltReason != domain.HaltReasonKillSwitch {
		return fmt.Errorf("risk: resume: halt reason %q clears only on daily reset: %w",
			l.state.HaltReason, domain.ErrInvalidTransition)
	}
	l.state.TradingHalted = false
	l.state.HaltReason = domain.HaltReasonNone
	l.logger.Info("trading resumed")
	return nil
}

// DailyReset starts a new trading day: the current bank becomes the new
// baseline, realized PnL zeroes and any halt clears. Open positions carry
// over untouched; their exposure still counts against the new day's cap.
func (l *Ledger) DailyReset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.DailyStartBalance = l.state.BankBalance
	l.state.DailyRealizedPnL = 0
	l.state.TradingHalted = false
	l.state.HaltReason = domain.HaltReasonNone
	l.state.DayStartedAt = time.Now().UTC()

	l.logger.Info("daily reset",
		slog.Float64("daily_start", l.state.DailyStartBalance),
		slog.Float64("open_exposure", l.state.OpenExposureTotal),
	)
}

// Snapshot returns a copy of the current risk state.
func (l *Ledger) Snapshot() domain.RiskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// PendingReservations returns the number of outstanding reservations.
func (l *Ledger) PendingReservations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
