// Package indicator holds the technical indicators that feed the signal
// aggregator. Each indicator reads one immutable market window and produces
// a directional vote; the weight attached to each vote comes from the
// configured weight table, so adding an indicator means adding a variant
// here and a row there.
package indicator

import (
	"github.com/alanyoungcy/optionbot/internal/domain"
)

// Vote is one indicator's directional opinion for a single evaluation.
type Vote struct {
	Indicator string
	Direction domain.Direction
}

// Indicator is the capability every technical indicator implements. Votes
// must be pure functions of the window: identical windows produce identical
// votes, which is what makes signal evaluation replayable in tests.
type Indicator interface {
	Name() string
	ProduceVote(win domain.MarketWindow) (Vote, error)
}

// Params carries the tunable inputs shared by the built-in indicators.
// Values map 1:1 onto the [signals] config section.
type Params struct {
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	VolumeRatio    float64
	VolumeLookback int

	PriceActionLookback int
}

// vote is a small constructor shared by the indicator implementations.
func vote(name string, dir domain.Direction) Vote {
	return Vote{Indicator: name, Direction: dir}
}
