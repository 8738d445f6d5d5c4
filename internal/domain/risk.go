package domain

import "time"

// HaltReason explains why new position creation is blocked for the day.
type HaltReason string

const (
	HaltReasonNone       HaltReason = ""
	HaltReasonStopLoss   HaltReason = "stop_loss"
	HaltReasonStopGain   HaltReason = "stop_gain"
	HaltReasonKillSwitch HaltReason = "kill_switch"
)

// RiskState is the account-wide risk picture for one trading day. The risk
// ledger owns the single mutable instance; everything outside the ledger
// sees value copies taken under the ledger's lock.
type RiskState struct {
	BankBalance         float64
	DailyStartBalance   float64
	DailyRealizedPnL    float64
	OpenExposureTotal   float64
	OpenExposureByAsset map[string]float64
	TradingHalted       bool
	HaltReason          HaltReason
	DayStartedAt        time.Time
}

// Clone returns a deep copy, so snapshots cannot alias the ledger's map.
func (s RiskState) Clone() RiskState {
	out := s
	out.OpenExposureByAsset = make(map[string]float64, len(s.OpenExposureByAsset))
	for k, v := range s.OpenExposureByAsset {
		out.OpenExposureByAsset[k] = v
	}
	return out
}

// ReservationToken proves a stake has been reserved against the ledger.
// It must be settled or released exactly once.
type ReservationToken struct {
	ID        string
	AssetID   string
	Stake     float64
	CreatedAt time.Time
}
