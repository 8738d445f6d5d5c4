package indicator

import (
	"fmt"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// MACD votes on moving-average convergence/divergence: a MACD line above its
// signal line with a rising histogram is bullish momentum, the mirror image
// is bearish. A crossover without histogram confirmation votes none.
type MACD struct {
	fast   int
	slow   int
	signal int
}

// NewMACD creates a MACD indicator from the given parameters.
func NewMACD(p Params) *MACD {
	return &MACD{
		fast:   p.MACDFast,
		slow:   p.MACDSlow,
		signal: p.MACDSignal,
	}
}

// Name returns the indicator identifier used in the weight table.
func (m *MACD) Name() string { return "macd" }

// ProduceVote maps the window's MACD values onto a direction.
func (m *MACD) ProduceVote(win domain.MarketWindow) (Vote, error) {
	need := m.slow + m.signal
	if len(win.Candles) < need {
		return Vote{}, fmt.Errorf("macd: need %d candles, have %d", need, len(win.Candles))
	}

	switch {
	case win.MACDLine > win.MACDSignal && win.MACDHist > win.PrevMACDHist:
		return vote(m.Name(), domain.DirectionUp), nil
	case win.MACDLine < win.MACDSignal && win.MACDHist < win.PrevMACDHist:
		return vote(m.Name(), domain.DirectionDown), nil
	}
	return vote(m.Name(), domain.DirectionNone), nil
}

// MACDValues holds the derived series endpoints the vote logic needs.
type MACDValues struct {
	Line     float64
	Signal   float64
	Hist     float64
	PrevHist float64
}

// ComputeMACD derives the MACD line (fast EMA minus slow EMA), its signal
// line (EMA of the MACD line), and the last two histogram values from the
// close series. The series must hold at least slow+signalPeriod values.
func ComputeMACD(closes []float64, fast, slow, signalPeriod int) (MACDValues, error) {
	if len(closes) < slow+signalPeriod {
		return MACDValues{}, fmt.Errorf("macd: need %d closes, have %d", slow+signalPeriod, len(closes))
	}

	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	// MACD line exists once the slow EMA does.
	macdLine := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdLine = append(macdLine, fastEMA[i]-slowEMA[i])
	}

	signalLine := emaSeries(macdLine, signalPeriod)

	last := len(macdLine) - 1
	out := MACDValues{
		Line:   macdLine[last],
		Signal: signalLine[last],
	}
	out.Hist = out.Line - out.Signal
	if last > 0 {
		out.PrevHist = macdLine[last-1] - signalLine[last-1]
	}
	return out, nil
}

// emaSeries returns the exponential moving average of values. Positions
// before the first full period are seeded with the simple average so the
// output is index-aligned with the input.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period < 1 {
		period = 1
	}

	k := 2.0 / float64(period+1)

	var sum float64
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
			continue
		}
		out[i] = v*k + out[i-1]*(1-k)
	}
	return out
}
