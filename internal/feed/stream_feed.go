package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optionbot/internal/broker"
	"github.com/alanyoungcy/optionbot/internal/domain"
)

// quoteEvent is the JSON shape published to the "quotes" channel for the
// dashboard stream.
type quoteEvent struct {
	Event     string  `json:"event"`
	AssetID   string  `json:"asset_id"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// StreamFeedConfig wires the stream feed's inputs and outputs.
type StreamFeedConfig struct {
	Assets  []string
	Stream  *broker.Stream
	Windows *Windows

	// Quotes mirrors every tick into the quote cache. May be nil.
	Quotes domain.QuoteCache
	// Bus republishes quotes for dashboard subscribers. May be nil.
	Bus domain.SignalBus

	// OnSettlement receives every settlement push. Usually the execution
	// coordinator's inbox.
	OnSettlement func(domain.SettlementEvent)
	// OnDisconnect is told about connection losses. May be nil.
	OnDisconnect func(error)

	Logger *slog.Logger
}

// StreamFeed connects the broker stream to the rest of the engine: quotes
// flow into the bar builder, the cache and the dashboard channel, and
// settlement pushes flow into the coordinator's inbox.
type StreamFeed struct {
	cfg    StreamFeedConfig
	logger *slog.Logger
}

// NewStreamFeed creates a StreamFeed.
func NewStreamFeed(cfg StreamFeedConfig) *StreamFeed {
	return &StreamFeed{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "stream_feed")),
	}
}

// Run registers handlers, connects with retry and subscribes the configured
// assets, then blocks until ctx is cancelled. The stream reconnects itself
// after transient drops; Run only fails when the context ends.
func (f *StreamFeed) Run(ctx context.Context) error {
	if len(f.cfg.Assets) == 0 {
		f.logger.Info("no assets to subscribe, exiting")
		return nil
	}

	f.cfg.Stream.OnQuote(f.handleQuote)
	if f.cfg.OnSettlement != nil {
		f.cfg.Stream.OnSettlement(f.cfg.OnSettlement)
	}
	if f.cfg.OnDisconnect != nil {
		f.cfg.Stream.OnDisconnect(f.cfg.OnDisconnect)
	}

	for {
		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := f.cfg.Stream.Connect(connCtx)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("broker stream connect failed, retrying",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err := f.cfg.Stream.Subscribe(ctx, f.cfg.Assets); err != nil {
		return err
	}
	f.logger.Info("stream feed started", slog.Int("assets", len(f.cfg.Assets)))

	<-ctx.Done()
	_ = f.cfg.Stream.Close()
	return ctx.Err()
}

// handleQuote fans one tick out to the bar builder, the quote cache and the
// dashboard channel.
func (f *StreamFeed) handleQuote(q domain.Quote) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f.cfg.Windows.Ingest(ctx, q)

	if f.cfg.Quotes != nil {
		if err := f.cfg.Quotes.SetQuote(ctx, q.AssetID, q.Price, q.Timestamp); err != nil {
			f.logger.Debug("quote cache set failed",
				slog.String("asset_id", q.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}

	if f.cfg.Bus != nil {
		payload, err := json.Marshal(quoteEvent{
			Event:     "quote",
			AssetID:   q.AssetID,
			Price:     q.Price,
			Timestamp: q.Timestamp.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			if err := f.cfg.Bus.Publish(ctx, "quotes", payload); err != nil {
				f.logger.Debug("quote publish failed", slog.String("error", err.Error()))
			}
		}
	}
}
