package indicator

import (
	"fmt"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// Volume votes when the latest bar trades at a multiple of recent average
// volume. A surge confirms whichever way the bar itself closed; quiet bars
// vote none.
type Volume struct {
	ratio    float64
	lookback int
}

// NewVolume creates a Volume indicator from the given parameters.
func NewVolume(p Params) *Volume {
	return &Volume{
		ratio:    p.VolumeRatio,
		lookback: p.VolumeLookback,
	}
}

// Name returns the indicator identifier used in the weight table.
func (v *Volume) Name() string { return "volume" }

// ProduceVote compares the last bar's volume against the average of the
// preceding lookback bars.
func (v *Volume) ProduceVote(win domain.MarketWindow) (Vote, error) {
	if len(win.Candles) < v.lookback+1 {
		return Vote{}, fmt.Errorf("volume: need %d candles, have %d", v.lookback+1, len(win.Candles))
	}

	last := win.Candles[len(win.Candles)-1]
	prev := win.Candles[len(win.Candles)-1-v.lookback : len(win.Candles)-1]

	var sum float64
	for _, c := range prev {
		sum += c.Volume
	}
	avg := sum / float64(len(prev))
	if avg <= 0 {
		return vote(v.Name(), domain.DirectionNone), nil
	}

	if last.Volume/avg > v.ratio {
		if last.Bullish() {
			return vote(v.Name(), domain.DirectionUp), nil
		}
		if last.Close < last.Open {
			return vote(v.Name(), domain.DirectionDown), nil
		}
	}
	return vote(v.Name(), domain.DirectionNone), nil
}
