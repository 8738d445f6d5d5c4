package indicator

import (
	"fmt"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// RSI votes on the relative strength index carried by the window: oversold
// readings vote up (mean-reversion entry), overbought readings vote down.
type RSI struct {
	period     int
	overbought float64
	oversold   float64
}

// NewRSI creates an RSI indicator from the given parameters.
func NewRSI(p Params) *RSI {
	return &RSI{
		period:     p.RSIPeriod,
		overbought: p.RSIOverbought,
		oversold:   p.RSIOversold,
	}
}

// Name returns the indicator identifier used in the weight table.
func (r *RSI) Name() string { return "rsi" }

// ProduceVote maps the window's RSI value onto a direction.
func (r *RSI) ProduceVote(win domain.MarketWindow) (Vote, error) {
	if len(win.Candles) < r.period+1 {
		return Vote{}, fmt.Errorf("rsi: need %d candles, have %d", r.period+1, len(win.Candles))
	}

	switch {
	case win.RSI <= r.oversold:
		return vote(r.Name(), domain.DirectionUp), nil
	case win.RSI >= r.overbought:
		return vote(r.Name(), domain.DirectionDown), nil
	}
	return vote(r.Name(), domain.DirectionNone), nil
}

// ComputeRSI calculates the relative strength index over the final `period`
// deltas of the close series, using simple-average gains and losses. The
// series must hold at least period+1 values.
func ComputeRSI(closes []float64, period int) (float64, error) {
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi: need %d closes, have %d", period+1, len(closes))
	}

	var gains, losses float64
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
