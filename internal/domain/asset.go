package domain

import "time"

// Direction is the side of a binary-options trade.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionNone Direction = "none"
)

// Opposite returns the reverse direction. None maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionNone
	}
}

// Asset is one tradable instrument on the broker account. Assets are created
// at configuration load and live for the whole session; quotes are refreshed
// each tick and the enabled flag can be toggled from the dashboard.
type Asset struct {
	ID        string
	Quote     float64
	Enabled   bool
	UpdatedAt time.Time
}

// Quote is a single price observation for an asset.
type Quote struct {
	AssetID   string
	Price     float64
	Timestamp time.Time
}
