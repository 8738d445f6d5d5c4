package domain

import "time"

// Signal is a directional, confidence-scored trading opinion for one asset
// at one evaluation tick. Signals are immutable once produced and are
// discarded after the allocator consumes them.
type Signal struct {
	AssetID      string
	Direction    Direction
	Confidence   float64 // in [0,1]
	Contributing []string
	GeneratedAt  time.Time
}

// Actionable reports whether the signal may be forwarded to the allocator.
func (s Signal) Actionable() bool {
	return s.Direction != DirectionNone && s.Confidence > 0
}

// Order is a sized trade request produced by the allocator. The reservation
// token pins the stake against the risk ledger until the execution
// coordinator either opens the position or releases it.
type Order struct {
	AssetID    string
	Direction  Direction
	Stake      float64
	Expiry     time.Duration
	Token      ReservationToken
	Confidence float64
	// ClientID is our position ID, echoed back by brokers that support a
	// client reference so settlements route without an order ID lookup.
	ClientID  string
	CreatedAt time.Time
}
