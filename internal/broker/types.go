package broker

import (
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// quotePayload is one spot quote, pushed on the "quotes" channel and
// returned by GET /v1/quotes/{asset}.
type quotePayload struct {
	AssetID   string  `json:"asset_id"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

func (q quotePayload) toDomain() domain.Quote {
	return domain.Quote{
		AssetID:   q.AssetID,
		Price:     q.Price,
		Timestamp: time.UnixMilli(q.Timestamp).UTC(),
	}
}

// candlePayload is one OHLCV bar from GET /v1/candles/{asset}.
type candlePayload struct {
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
	Volume  float64 `json:"volume"`
	StartTs int64   `json:"start_ts"` // unix milliseconds
	EndTs   int64   `json:"end_ts"`
}

func (c candlePayload) toDomain() domain.Candle {
	return domain.Candle{
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
		Start:  time.UnixMilli(c.StartTs).UTC(),
		End:    time.UnixMilli(c.EndTs).UTC(),
	}
}

// orderRequest is the POST /v1/orders body.
type orderRequest struct {
	AssetID     string  `json:"asset_id"`
	Contract    string  `json:"contract"` // call | put
	Amount      float64 `json:"amount"`
	DurationSec int     `json:"duration_sec"`
	ClientRef   string  `json:"client_ref,omitempty"`
	Account     string  `json:"account"` // practice | real
}

// orderResponse is the POST /v1/orders reply.
type orderResponse struct {
	Order struct {
		ID     string `json:"id"`
		Status string `json:"status"` // accepted | rejected
	} `json:"order"`
	Message string `json:"message"`
}

// balanceResponse is the GET /v1/account/balance reply.
type balanceResponse struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// settlementPayload is one settlement push on the "settlements" channel.
// The platform redelivers until the client acknowledges by staying
// connected, so the same order can arrive more than once.
type settlementPayload struct {
	OrderID   string  `json:"order_id"`
	ClientRef string  `json:"client_ref"`
	Result    string  `json:"result"` // win | loss | draw
	Profit    float64 `json:"profit"`
	SettledTs int64   `json:"settled_ts"`
}

func (s settlementPayload) toDomain() domain.SettlementEvent {
	received := time.Now().UTC()
	if s.SettledTs > 0 {
		received = time.UnixMilli(s.SettledTs).UTC()
	}
	return domain.SettlementEvent{
		PositionID: s.ClientRef,
		OrderID:    s.OrderID,
		Outcome:    parseOutcome(s.Result),
		Payout:     s.Profit,
		ReceivedAt: received,
	}
}

// wsCommand is a client-to-server websocket frame. Auth fields are set only
// on the initial auth command.
type wsCommand struct {
	Type      string   `json:"type"`
	Channel   string   `json:"channel,omitempty"`
	Assets    []string `json:"assets,omitempty"`
	APIKey    string   `json:"api_key,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Signature string   `json:"signature,omitempty"`
}

// errorResponse is the platform's error body shape.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
