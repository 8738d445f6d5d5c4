package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache over Redis hashes. The latest
// quote for an asset lives at "quote:{assetID}" with a price field and a
// Unix-nanosecond ts field.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(assetID string) string {
	return "quote:" + assetID
}

// SetQuote stores the latest price and timestamp for an asset.
func (qc *QuoteCache) SetQuote(ctx context.Context, assetID string, price float64, ts time.Time) error {
	err := qc.rdb.HSet(ctx, quoteKey(assetID),
		"price", strconv.FormatFloat(price, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixNano(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set quote %s: %w", assetID, err)
	}
	return nil
}

// GetQuote retrieves the latest price and timestamp for an asset, or
// domain.ErrNotFound when nothing has been stored yet.
func (qc *QuoteCache) GetQuote(ctx context.Context, assetID string) (float64, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(assetID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get quote %s: %w", assetID, err)
	}

	price, ts, err := parseQuote(vals)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("redis: quote %s: %w", assetID, err)
	}
	return price, ts, nil
}

// parseQuote decodes a quote hash. An empty or incomplete hash maps to
// domain.ErrNotFound.
func parseQuote(vals map[string]string) (float64, time.Time, error) {
	priceStr, okPrice := vals["price"]
	tsStr, okTS := vals["ts"]
	if !okPrice || !okTS {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price: %w", err)
	}
	nanos, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, nanos).UTC(), nil
}

// GetQuotes fetches the latest prices for several assets in one pipeline.
// Assets without a stored quote are left out of the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, assetIDs []string) (map[string]float64, error) {
	if len(assetIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(assetIDs))
	for _, id := range assetIDs {
		cmds[id] = pipe.HGetAll(ctx, quoteKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	prices := make(map[string]float64, len(assetIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, err := parseQuote(vals); err == nil {
			prices[id] = price
		}
	}
	return prices, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
