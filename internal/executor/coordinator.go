// Package executor carries orders from the allocator to the broker and
// settlements from the broker back to the risk ledger. It owns every
// position between submission and settlement, and it is the only caller of
// the ledger's Settle.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/risk"
)

// OrderPlacer is the interface through which the coordinator submits
// binary-options orders to the broker. PlaceOrder returns the broker-side
// order ID on acceptance.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order domain.Order) (string, error)
}

// PositionSink receives position lifecycle updates for persistence and
// dashboards. Sink failures never block trading; the coordinator logs and
// moves on.
type PositionSink interface {
	PositionOpened(ctx context.Context, pos domain.Position) error
	PositionClosed(ctx context.Context, pos domain.Position, pnl float64) error
}

// Config carries the coordinator parameters.
type Config struct {
	// OrderTimeout bounds one broker submission. A timed-out submission
	// counts as failed and triggers the compensating release.
	OrderTimeout time.Duration
	// SettleDedupTTL is how long settled position IDs are remembered for
	// duplicate detection.
	SettleDedupTTL time.Duration
	// InboxSize is the settlement channel capacity.
	InboxSize int
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 10 * time.Second
	}
	if c.SettleDedupTTL <= 0 {
		c.SettleDedupTTL = 10 * time.Minute
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
	return c
}

// openEntry pins the reservation to the in-flight position it funds.
type openEntry struct {
	pos   domain.Position
	token domain.ReservationToken
}

// Coordinator submits orders and consumes the settlement inbox. Submissions
// come from the session controller's tick goroutine; settlements are
// processed by a single loop goroutine, so each position settles exactly
// once no matter how often the broker redelivers.
type Coordinator struct {
	cfg    Config
	placer OrderPlacer
	ledger *risk.Ledger
	sink   PositionSink
	dedup  *Dedup
	logger *slog.Logger

	inbox chan domain.SettlementEvent

	mu         sync.Mutex
	open       map[string]openEntry // position ID -> entry
	orderIndex map[string]string    // broker order ID -> position ID
}

// NewCoordinator creates a Coordinator. The sink may be nil when nothing
// downstream wants lifecycle updates.
func NewCoordinator(cfg Config, placer OrderPlacer, ledger *risk.Ledger, sink PositionSink, logger *slog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:        cfg,
		placer:     placer,
		ledger:     ledger,
		sink:       sink,
		dedup:      NewDedup(cfg.SettleDedupTTL),
		logger:     logger.With(slog.String("component", "executor")),
		inbox:      make(chan domain.SettlementEvent, cfg.InboxSize),
		open:       make(map[string]openEntry),
		orderIndex: make(map[string]string),
	}
}

// Submit places one allocated order with the broker. On success the
// returned position is open and tracked until its settlement arrives. On
// any failure, rejection, connectivity loss or timeout alike, the
// reservation is released, the position is voided and the error returned.
func (c *Coordinator) Submit(ctx context.Context, order domain.Order) (domain.Position, error) {
	now := time.Now().UTC()
	pos := domain.Position{
		ID:        uuid.NewString(),
		AssetID:   order.AssetID,
		Direction: order.Direction,
		Stake:     order.Stake,
		Status:    domain.PositionStatusPending,
		OpenedAt:  now,
		ExpiresAt: now.Add(order.Expiry),
	}

	log := c.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("asset_id", pos.AssetID),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("stake", pos.Stake),
	)

	// Brokers that echo a client reference route the settlement straight
	// back to this position.
	order.ClientID = pos.ID

	placeCtx, cancel := context.WithTimeout(ctx, c.cfg.OrderTimeout)
	orderID, err := c.placer.PlaceOrder(placeCtx, order)
	cancel()
	if err != nil {
		c.compensate(ctx, pos, order.Token, err, log)
		return pos, fmt.Errorf("executor: submit %s: %w", order.AssetID, err)
	}

	pos.OrderID = orderID
	pos.Status = domain.PositionStatusOpen

	c.mu.Lock()
	c.open[pos.ID] = openEntry{pos: pos, token: order.Token}
	if orderID != "" {
		c.orderIndex[orderID] = pos.ID
	}
	c.mu.Unlock()

	log.InfoContext(ctx, "position opened",
		slog.String("order_id", orderID),
		slog.Time("expires_at", pos.ExpiresAt),
	)
	if c.sink != nil {
		if err := c.sink.PositionOpened(ctx, pos); err != nil {
			log.Warn("position sink open failed", slog.String("error", err.Error()))
		}
	}
	return pos, nil
}

// compensate unwinds a failed submission: the stake reservation is
// released, the position voided and the failure surfaced downstream.
func (c *Coordinator) compensate(ctx context.Context, pos domain.Position, token domain.ReservationToken, cause error, log *slog.Logger) {
	if err := c.ledger.Release(token); err != nil {
		log.Error("compensating release failed", slog.String("error", err.Error()))
	}

	pos.Status = domain.PositionStatusVoid
	settled := time.Now().UTC()
	pos.SettledAt = &settled

	switch {
	case errors.Is(cause, domain.ErrOrderRejected):
		log.WarnContext(ctx, "order rejected, stake released", slog.String("error", cause.Error()))
	case errors.Is(cause, context.DeadlineExceeded):
		log.WarnContext(ctx, "order submission timed out, stake released")
	default:
		log.WarnContext(ctx, "order submission failed, stake released", slog.String("error", cause.Error()))
	}

	if c.sink != nil {
		if err := c.sink.PositionClosed(ctx, pos, 0); err != nil {
			log.Warn("position sink close failed", slog.String("error", err.Error()))
		}
	}
}

// SubmitSettlement enqueues one broker settlement notification. It never
// blocks; when the inbox is full the event is dropped and the broker's
// at-least-once redelivery brings it back.
func (c *Coordinator) SubmitSettlement(ev domain.SettlementEvent) {
	select {
	case c.inbox <- ev:
	default:
		c.logger.Error("settlement inbox full, dropping event",
			slog.String("position_id", ev.PositionID),
			slog.String("order_id", ev.OrderID),
		)
	}
}

// Run consumes the settlement inbox until the context is cancelled, then
// drains whatever is already buffered so no received settlement is lost to
// shutdown timing.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("execution coordinator started")
	defer c.logger.Info("execution coordinator stopped")

	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()
		case ev := <-c.inbox:
			c.handleSettlement(ctx, ev)
		case <-cleanup.C:
			c.dedup.Cleanup()
			c.logOverdue()
		}
	}
}

// handleSettlement applies one settlement to the position and the ledger.
// Duplicates are recognised by position ID; events for positions this
// process never opened are logged and dropped.
func (c *Coordinator) handleSettlement(ctx context.Context, ev domain.SettlementEvent) {
	c.mu.Lock()
	posID := ev.PositionID
	if posID == "" {
		posID = c.orderIndex[ev.OrderID]
	}
	entry, known := c.open[posID]
	c.mu.Unlock()

	log := c.logger.With(
		slog.String("position_id", posID),
		slog.String("order_id", ev.OrderID),
		slog.String("outcome", string(ev.Outcome)),
	)

	if posID != "" && c.dedup.Seen(posID) {
		log.Debug("duplicate settlement ignored")
		return
	}
	if !known {
		log.Warn("settlement for unknown position dropped",
			slog.Float64("payout", ev.Payout),
		)
		return
	}

	if err := c.ledger.Settle(entry.token, ev.Outcome, ev.Payout); err != nil {
		log.Error("ledger settle failed", slog.String("error", err.Error()))
		return
	}
	c.dedup.Mark(posID)

	c.mu.Lock()
	delete(c.open, posID)
	if entry.pos.OrderID != "" {
		delete(c.orderIndex, entry.pos.OrderID)
	}
	c.mu.Unlock()

	pos := entry.pos
	pos.Status = ev.Outcome.Status()
	pos.Payout = ev.Payout
	settled := ev.ReceivedAt
	if settled.IsZero() {
		settled = time.Now().UTC()
	}
	pos.SettledAt = &settled

	var pnl float64
	switch ev.Outcome {
	case domain.OutcomeWon:
		pnl = ev.Payout
	case domain.OutcomeLost:
		pnl = -pos.Stake
	}

	log.InfoContext(ctx, "position settled", slog.Float64("pnl", pnl))
	if c.sink != nil {
		if err := c.sink.PositionClosed(ctx, pos, pnl); err != nil {
			log.Warn("position sink close failed", slog.String("error", err.Error()))
		}
	}
}

// logOverdue flags open positions well past expiry whose settlement has not
// arrived. They stay tracked: the broker may still deliver.
func (c *Coordinator) logOverdue() {
	grace := 2 * time.Minute
	now := time.Now().UTC()

	c.mu.Lock()
	var overdue int
	for _, entry := range c.open {
		if now.After(entry.pos.ExpiresAt.Add(grace)) {
			overdue++
		}
	}
	c.mu.Unlock()

	if overdue > 0 {
		c.logger.Warn("positions awaiting settlement past expiry", slog.Int("count", overdue))
	}
}

// drain applies settlements already buffered at shutdown under a short
// standalone context.
func (c *Coordinator) drain() {
	for {
		select {
		case ev := <-c.inbox:
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.handleSettlement(drainCtx, ev)
			cancel()
		default:
			return
		}
	}
}

// OpenPositions returns the tracked in-flight positions, unordered.
func (c *Coordinator) OpenPositions() []domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Position, 0, len(c.open))
	for _, entry := range c.open {
		out = append(out, entry.pos)
	}
	return out
}

// OpenCount returns the number of positions awaiting settlement.
func (c *Coordinator) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}
