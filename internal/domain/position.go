package domain

import "time"

// PositionStatus tracks a binary-options position through its lifecycle.
type PositionStatus string

const (
	PositionStatusPending PositionStatus = "pending"
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusWon     PositionStatus = "won"
	PositionStatusLost    PositionStatus = "lost"
	PositionStatusVoid    PositionStatus = "void"
)

// Terminal reports whether the status is final. Terminal positions never
// transition again; late settlement notifications for them are dropped.
func (s PositionStatus) Terminal() bool {
	switch s {
	case PositionStatusWon, PositionStatusLost, PositionStatusVoid:
		return true
	}
	return false
}

// validTransitions is the allowed status graph: pending to open or void,
// open to any terminal state.
var validTransitions = map[PositionStatus][]PositionStatus{
	PositionStatusPending: {PositionStatusOpen, PositionStatusVoid},
	PositionStatusOpen:    {PositionStatusWon, PositionStatusLost, PositionStatusVoid},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to PositionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome is the broker-reported result of a settled position.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
	OutcomeVoid Outcome = "void" // at-the-money or broker-voided
)

// Status returns the position status an outcome maps to.
func (o Outcome) Status() PositionStatus {
	switch o {
	case OutcomeWon:
		return PositionStatusWon
	case OutcomeLost:
		return PositionStatusLost
	default:
		return PositionStatusVoid
	}
}

// Position is one binary-options trade from submission to settlement. It is
// owned exclusively by the execution coordinator until a terminal status is
// reached, then folded into the trade log.
type Position struct {
	ID        string
	OrderID   string // broker-side identifier
	AssetID   string
	Direction Direction
	Stake     float64
	Payout    float64 // net profit credited on win, set at settlement
	Status    PositionStatus
	OpenedAt  time.Time
	ExpiresAt time.Time
	SettledAt *time.Time
}

// SettlementEvent is one at-least-once settlement notification from the
// broker, delivered to the execution coordinator's inbox.
type SettlementEvent struct {
	PositionID string
	OrderID    string
	Outcome    Outcome
	Payout     float64
	ReceivedAt time.Time
}
