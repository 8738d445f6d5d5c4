package indicator

import (
	"fmt"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// PriceAction votes with the short-term drift: the latest close against the
// close a fixed number of bars earlier.
type PriceAction struct {
	lookback int
}

// NewPriceAction creates a PriceAction indicator from the given parameters.
func NewPriceAction(p Params) *PriceAction {
	return &PriceAction{lookback: p.PriceActionLookback}
}

// Name returns the indicator identifier used in the weight table.
func (p *PriceAction) Name() string { return "price_action" }

// ProduceVote compares the last close to the close lookback bars before it.
func (p *PriceAction) ProduceVote(win domain.MarketWindow) (Vote, error) {
	if len(win.Candles) < p.lookback+1 {
		return Vote{}, fmt.Errorf("price_action: need %d candles, have %d", p.lookback+1, len(win.Candles))
	}

	last := win.Candles[len(win.Candles)-1].Close
	ref := win.Candles[len(win.Candles)-1-p.lookback].Close

	switch {
	case last > ref:
		return vote(p.Name(), domain.DirectionUp), nil
	case last < ref:
		return vote(p.Name(), domain.DirectionDown), nil
	}
	return vote(p.Name(), domain.DirectionNone), nil
}
