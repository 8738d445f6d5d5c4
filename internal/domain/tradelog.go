package domain

import "time"

// TradeRecord is one row of the append-only settled-trade log. Written once
// when a position reaches a terminal status, never updated.
type TradeRecord struct {
	ID           int64
	PositionID   string
	AssetID      string
	Direction    Direction
	Stake        float64
	Outcome      Outcome
	Payout       float64
	PnL          float64 // +payout on win, -stake on loss, 0 on void
	BalanceAfter float64
	SettledAt    time.Time
}
