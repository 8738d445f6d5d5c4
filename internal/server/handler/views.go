package handler

import (
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// JSON projections of the domain types. The domain structs carry no tags;
// the wire shapes live here so the API can evolve without touching them.

type positionView struct {
	ID        string     `json:"id"`
	AssetID   string     `json:"asset_id"`
	Direction string     `json:"direction"`
	Stake     float64    `json:"stake"`
	Payout    float64    `json:"payout"`
	Status    string     `json:"status"`
	OpenedAt  time.Time  `json:"opened_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func toPositionView(p domain.Position) positionView {
	return positionView{
		ID:        p.ID,
		AssetID:   p.AssetID,
		Direction: string(p.Direction),
		Stake:     p.Stake,
		Payout:    p.Payout,
		Status:    string(p.Status),
		OpenedAt:  p.OpenedAt,
		ExpiresAt: p.ExpiresAt,
		SettledAt: p.SettledAt,
	}
}

func toPositionViews(positions []domain.Position) []positionView {
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	return views
}

type signalView struct {
	AssetID      string    `json:"asset_id"`
	Direction    string    `json:"direction"`
	Confidence   float64   `json:"confidence"`
	Contributing []string  `json:"contributing"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func toSignalView(s domain.Signal) signalView {
	contributing := s.Contributing
	if contributing == nil {
		contributing = []string{}
	}
	return signalView{
		AssetID:      s.AssetID,
		Direction:    string(s.Direction),
		Confidence:   s.Confidence,
		Contributing: contributing,
		GeneratedAt:  s.GeneratedAt,
	}
}

func toSignalViews(signals []domain.Signal) []signalView {
	views := make([]signalView, 0, len(signals))
	for _, s := range signals {
		views = append(views, toSignalView(s))
	}
	return views
}

type candleView struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func toCandleViews(candles []domain.Candle) []candleView {
	views := make([]candleView, 0, len(candles))
	for _, c := range candles {
		views = append(views, candleView{
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
			Volume: c.Volume, Start: c.Start, End: c.End,
		})
	}
	return views
}

type assetStatsView struct {
	AssetID string  `json:"asset_id"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Voids   int     `json:"voids"`
	NetPnL  float64 `json:"net_pnl"`
	WinRate float64 `json:"win_rate"`
}

type statsView struct {
	Trades  int                       `json:"trades"`
	Wins    int                       `json:"wins"`
	Losses  int                       `json:"losses"`
	Voids   int                       `json:"voids"`
	NetPnL  float64                   `json:"net_pnl"`
	WinRate float64                   `json:"win_rate"`
	ByAsset map[string]assetStatsView `json:"by_asset"`
}

func toStatsView(s domain.SessionStats) statsView {
	byAsset := make(map[string]assetStatsView, len(s.ByAsset))
	for id, as := range s.ByAsset {
		byAsset[id] = assetStatsView{
			AssetID: as.AssetID,
			Wins:    as.Wins,
			Losses:  as.Losses,
			Voids:   as.Voids,
			NetPnL:  as.NetPnL,
			WinRate: as.WinRate(),
		}
	}
	return statsView{
		Trades:  s.Trades,
		Wins:    s.Wins,
		Losses:  s.Losses,
		Voids:   s.Voids,
		NetPnL:  s.NetPnL,
		WinRate: s.WinRate(),
		ByAsset: byAsset,
	}
}
