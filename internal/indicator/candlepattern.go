package indicator

import (
	"fmt"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// CandlePattern recognises single and two-bar reversal shapes on the final
// candles of the window: doji (indecision, votes none), hammer (votes up)
// and bullish or bearish engulfing.
type CandlePattern struct{}

// NewCandlePattern creates a CandlePattern indicator.
func NewCandlePattern() *CandlePattern { return &CandlePattern{} }

// Name returns the indicator identifier used in the weight table.
func (c *CandlePattern) Name() string { return "candle_pattern" }

// ProduceVote inspects the last two candles for a known pattern.
func (c *CandlePattern) ProduceVote(win domain.MarketWindow) (Vote, error) {
	if len(win.Candles) < 2 {
		return Vote{}, fmt.Errorf("candle_pattern: need 2 candles, have %d", len(win.Candles))
	}

	last := win.Candles[len(win.Candles)-1]
	prev := win.Candles[len(win.Candles)-2]

	if isDoji(last) {
		return vote(c.Name(), domain.DirectionNone), nil
	}
	if isHammer(last) {
		return vote(c.Name(), domain.DirectionUp), nil
	}
	if isBullishEngulfing(prev, last) {
		return vote(c.Name(), domain.DirectionUp), nil
	}
	if isBearishEngulfing(prev, last) {
		return vote(c.Name(), domain.DirectionDown), nil
	}
	return vote(c.Name(), domain.DirectionNone), nil
}

// isDoji reports a candle whose body is under a tenth of its range.
func isDoji(c domain.Candle) bool {
	r := c.Range()
	if r <= 0 {
		return false
	}
	return c.Body() < 0.1*r
}

// isHammer reports a long lower wick with a small upper wick relative to
// the body, a shape that often precedes a bounce.
func isHammer(c domain.Candle) bool {
	body := c.Body()
	if body <= 0 {
		return false
	}
	return c.LowerWick() > 2*body && c.UpperWick() < 0.5*body
}

// isBullishEngulfing reports a green body that swallows the prior red body.
func isBullishEngulfing(prev, last domain.Candle) bool {
	return prev.Close < prev.Open &&
		last.Bullish() &&
		last.Open <= prev.Close &&
		last.Close >= prev.Open
}

// isBearishEngulfing reports a red body that swallows the prior green body.
func isBearishEngulfing(prev, last domain.Candle) bool {
	return prev.Bullish() &&
		last.Close < last.Open &&
		last.Open >= prev.Close &&
		last.Close <= prev.Open
}
