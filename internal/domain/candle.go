package domain

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Start  time.Time
	End    time.Time
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	d := c.Close - c.Open
	if d < 0 {
		return -d
	}
	return d
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Bullish reports whether the bar closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	if c.Close > c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerWick returns the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 {
	if c.Close > c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// MarketWindow is the bounded per-asset input to one signal evaluation:
// recent bars plus the indicator values derived from them. It is assembled
// by the feed layer and treated as immutable by every consumer.
type MarketWindow struct {
	AssetID string
	Candles []Candle // oldest first

	RSI          float64
	MACDLine     float64
	MACDSignal   float64
	MACDHist     float64
	PrevMACDHist float64

	// NewsFlag carries an externally supplied fundamental bias for the
	// asset; DirectionNone when no flag is active.
	NewsFlag Direction

	GeneratedAt time.Time
}

// Last returns the most recent candle, or false when the window is empty.
func (w MarketWindow) Last() (Candle, bool) {
	if len(w.Candles) == 0 {
		return Candle{}, false
	}
	return w.Candles[len(w.Candles)-1], true
}
