package domain

// AccountType selects which broker balance the session trades against.
type AccountType string

const (
	AccountTypePractice AccountType = "practice"
	AccountTypeReal     AccountType = "real"
)

// AssetStats is the win/loss tally for one asset within the session.
type AssetStats struct {
	AssetID string
	Wins    int
	Losses  int
	Voids   int
	NetPnL  float64
}

// WinRate returns wins over decided trades, 0 when none have settled.
func (s AssetStats) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided)
}

// SessionStats aggregates settlement tallies across all assets.
type SessionStats struct {
	Trades  int
	Wins    int
	Losses  int
	Voids   int
	NetPnL  float64
	ByAsset map[string]AssetStats
}

// WinRate returns session-wide wins over decided trades.
func (s SessionStats) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided)
}
