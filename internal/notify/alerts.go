package notify

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// Event types the engine emits. The notify.events config list selects from
// these.
const (
	EventHalt             = "halt"
	EventDailyReset       = "daily_reset"
	EventSettlement       = "settlement"
	EventBrokerDisconnect = "broker_disconnect"
)

// Alerts formats engine events into operator notifications. It sits between
// the engine hooks and the channel-agnostic Notifier.
type Alerts struct {
	notifier *Notifier
	// minPnL suppresses settlement alerts whose absolute PnL is below the
	// threshold. Zero disables the filter.
	minPnL float64
}

// NewAlerts creates an Alerts front-end over the notifier.
func NewAlerts(notifier *Notifier, minPnL float64) *Alerts {
	return &Alerts{notifier: notifier, minPnL: minPnL}
}

// Halt reports that the day's trading stopped and why.
func (a *Alerts) Halt(ctx context.Context, reason domain.HaltReason, state domain.RiskState) error {
	var title string
	switch reason {
	case domain.HaltReasonStopLoss:
		title = "Trading halted: stop loss"
	case domain.HaltReasonStopGain:
		title = "Trading halted: stop gain"
	case domain.HaltReasonKillSwitch:
		title = "Trading halted: kill switch"
	default:
		title = "Trading halted"
	}

	msg := fmt.Sprintf("Daily PnL: %+.2f\nBank: %.2f (day start %.2f)\nOpen exposure: %.2f",
		state.DailyRealizedPnL, state.BankBalance, state.DailyStartBalance, state.OpenExposureTotal)
	return a.notifier.Notify(ctx, EventHalt, title, msg)
}

// DailyReset reports the day rollover with the closed day's PnL and the new
// start balance.
func (a *Alerts) DailyReset(ctx context.Context, before, after domain.RiskState) error {
	msg := fmt.Sprintf("Closed day PnL: %+.2f\nNew start balance: %.2f\nCarried exposure: %.2f",
		before.DailyRealizedPnL, after.DailyStartBalance, after.OpenExposureTotal)
	return a.notifier.Notify(ctx, EventDailyReset, "Daily reset", msg)
}

// Settlement reports one settled trade. Trades below the configured PnL
// threshold are dropped; voids only pass when the filter is disabled.
func (a *Alerts) Settlement(ctx context.Context, rec domain.TradeRecord) error {
	if a.minPnL > 0 && math.Abs(rec.PnL) < a.minPnL {
		return nil
	}

	var title string
	switch rec.Outcome {
	case domain.OutcomeWon:
		title = fmt.Sprintf("Won %s %+.2f", rec.AssetID, rec.PnL)
	case domain.OutcomeLost:
		title = fmt.Sprintf("Lost %s %+.2f", rec.AssetID, rec.PnL)
	default:
		title = fmt.Sprintf("Voided %s", rec.AssetID)
	}

	msg := fmt.Sprintf("%s %s stake %.2f\nBalance: %.2f",
		rec.AssetID, rec.Direction, rec.Stake, rec.BalanceAfter)
	return a.notifier.Notify(ctx, EventSettlement, title, msg)
}

// BrokerDisconnect reports a dropped market data or trading connection.
func (a *Alerts) BrokerDisconnect(ctx context.Context, err error) error {
	msg := "Reconnect in progress"
	if err != nil {
		msg = fmt.Sprintf("Error: %v\nReconnect in progress", err)
	}
	return a.notifier.Notify(ctx, EventBrokerDisconnect, "Broker connection lost", msg)
}
