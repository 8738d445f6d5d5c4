package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// defaultCandleLimit bounds the rolling per-asset candle list when no
// explicit limit is configured.
const defaultCandleLimit = 500

// candleRow is the JSON shape of one cached bar. Kept separate from
// domain.Candle so the cache encoding can stay stable if the domain type
// grows fields.
type candleRow struct {
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// CandleCache implements domain.CandleCache using a Redis list per asset at
// "candles:{assetID}", newest bar first, trimmed to a fixed length on every
// push. It survives engine restarts, which is what makes window warm-up
// possible without hitting the broker's history endpoint.
type CandleCache struct {
	rdb   *redis.Client
	limit int
}

// NewCandleCache creates a CandleCache. limit <= 0 falls back to the
// default rolling length.
func NewCandleCache(c *Client, limit int) *CandleCache {
	if limit <= 0 {
		limit = defaultCandleLimit
	}
	return &CandleCache{rdb: c.Underlying(), limit: limit}
}

func candleKey(assetID string) string {
	return "candles:" + assetID
}

// Push prepends one closed bar to the asset's rolling list and trims it.
func (cc *CandleCache) Push(ctx context.Context, assetID string, c domain.Candle) error {
	row := candleRow{
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
		Start:  c.Start,
		End:    c.End,
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("redis: encode candle %s: %w", assetID, err)
	}

	key := candleKey(assetID)
	pipe := cc.rdb.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, int64(cc.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push candle %s: %w", assetID, err)
	}
	return nil
}

// Recent returns up to limit closed bars for the asset, oldest first.
func (cc *CandleCache) Recent(ctx context.Context, assetID string, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > cc.limit {
		limit = cc.limit
	}

	raws, err := cc.rdb.LRange(ctx, candleKey(assetID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent candles %s: %w", assetID, err)
	}

	// The list is newest first; windows want oldest first.
	out := make([]domain.Candle, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var row candleRow
		if err := json.Unmarshal([]byte(raws[i]), &row); err != nil {
			return nil, fmt.Errorf("redis: decode candle %s: %w", assetID, err)
		}
		out = append(out, domain.Candle{
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
			Start:  row.Start,
			End:    row.End,
		})
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CandleCache = (*CandleCache)(nil)
