package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// defaultStreamMaxLen bounds durable streams via XADD MAXLEN ~ when no
// explicit limit is configured.
const defaultStreamMaxLen int64 = 10000

// SignalBus carries engine events over Redis: Pub/Sub for ephemeral fan-out
// (quotes, positions, status) and Streams for durable, ordered delivery (the
// signal history stream).
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus creates a SignalBus backed by the given Client. maxLen <= 0
// falls back to the default stream bound.
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish sends a raw byte payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription and returns a read-only channel of
// raw payloads. Names with glob wildcards go through PSubscribe. The
// subscription closes with the context, at which point the returned channel
// is closed too.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go forward(ctx, pubsub, out)
	return out, nil
}

// forward drains a subscription into out until the context ends or the
// subscription drops.
func forward(ctx context.Context, pubsub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer pubsub.Close()

	src := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-src:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

// StreamAppend appends a payload to a durable stream, trimmed approximately
// to the configured maximum length.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count messages from a stream starting after lastID.
// Use "0" to read from the beginning or "$" for only new messages. No
// pending messages is an empty result, not an error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamEntry, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1, // non-blocking; go-redis sends BLOCK 0 (wait forever) when this is zero
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var out []domain.StreamEntry
	for _, entry := range res {
		for _, raw := range entry.Messages {
			if msg, ok := decodeStreamEntry(raw); ok {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// decodeStreamEntry pulls the payload field out of one XREAD entry. Entries
// without a payload, or with one of an unexpected type, are skipped.
func decodeStreamEntry(raw redis.XMessage) (domain.StreamEntry, bool) {
	v, ok := raw.Values["payload"]
	if !ok {
		return domain.StreamEntry{}, false
	}
	switch payload := v.(type) {
	case string:
		return domain.StreamEntry{ID: raw.ID, Payload: []byte(payload)}, true
	case []byte:
		return domain.StreamEntry{ID: raw.ID, Payload: payload}, true
	default:
		return domain.StreamEntry{}, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
