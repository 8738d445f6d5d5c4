package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest quote per asset.
type QuoteCache interface {
	SetQuote(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetQuote(ctx context.Context, assetID string) (float64, time.Time, error)
	GetQuotes(ctx context.Context, assetIDs []string) (map[string]float64, error)
}

// CandleCache stores a rolling window of recent bars per asset.
type CandleCache interface {
	Push(ctx context.Context, assetID string, c Candle) error
	Recent(ctx context.Context, assetID string, limit int) ([]Candle, error)
}

// StreamEntry is one record read back from a durable stream.
type StreamEntry struct {
	ID      string
	Payload []byte
}

// SignalBus carries engine events between components. Publish and Subscribe
// are fire-and-forget fan-out. StreamAppend and StreamRead go through a
// durable stream, so a restarted consumer can resume from its last seen ID.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamEntry, error)
}

// RateLimiter throttles callers across every engine instance sharing the
// backing store.
type RateLimiter interface {
	// Allow reports whether one more event fits under limit within window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until Allow would succeed or the context ends.
	Wait(ctx context.Context, key string) error
}

// LockManager hands out exclusive named locks with a TTL, so a crashed
// holder cannot wedge the engine.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
