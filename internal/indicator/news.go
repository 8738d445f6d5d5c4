package indicator

import "github.com/alanyoungcy/optionbot/internal/domain"

// News passes through an externally supplied sentiment flag on the window.
// The feed layer sets the flag; with no news the vote is none.
type News struct{}

// NewNews creates a News indicator.
func NewNews() *News { return &News{} }

// Name returns the indicator identifier used in the weight table.
func (n *News) Name() string { return "news" }

// ProduceVote forwards the window's news flag as a direction.
func (n *News) ProduceVote(win domain.MarketWindow) (Vote, error) {
	switch win.NewsFlag {
	case domain.DirectionUp, domain.DirectionDown:
		return vote(n.Name(), win.NewsFlag), nil
	}
	return vote(n.Name(), domain.DirectionNone), nil
}
