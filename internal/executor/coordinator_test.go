package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/risk"
)

type fakePlacer struct {
	mu      sync.Mutex
	err     error
	block   time.Duration
	calls   int
	lastOrd domain.Order
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastOrd = order
	n := f.calls
	err := f.err
	block := f.block
	f.mu.Unlock()

	if block > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(block):
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("brk-%d", n), nil
}

func (f *fakePlacer) lastOrder() domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOrd
}

type sinkEvent struct {
	pos domain.Position
	pnl float64
}

type fakeSink struct {
	mu     sync.Mutex
	opened []domain.Position
	closed []sinkEvent
}

func (f *fakeSink) PositionOpened(ctx context.Context, pos domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, pos)
	return nil
}

func (f *fakeSink) PositionClosed(ctx context.Context, pos domain.Position, pnl float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sinkEvent{pos: pos, pnl: pnl})
	return nil
}

func (f *fakeSink) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closed)
}

func (f *fakeSink) closedAt(i int) sinkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[i]
}

func testCoordinator(t *testing.T, placer OrderPlacer) (*Coordinator, *risk.Ledger, *fakeSink) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ledger := risk.NewLedger(risk.Config{
		BankSeed:        1000,
		MaxExposureFrac: 0.20,
		StopLossFrac:    0.40,
		StopGainFrac:    1.00,
	}, logger)
	sink := &fakeSink{}
	coord := NewCoordinator(Config{
		OrderTimeout:   200 * time.Millisecond,
		SettleDedupTTL: time.Minute,
	}, placer, ledger, sink, logger)
	return coord, ledger, sink
}

func reservedOrder(t *testing.T, ledger *risk.Ledger, asset string, stake float64) domain.Order {
	t.Helper()
	tok, err := ledger.Reserve(asset, stake)
	require.NoError(t, err)
	return domain.Order{
		AssetID:   asset,
		Direction: domain.DirectionUp,
		Stake:     stake,
		Expiry:    time.Minute,
		Token:     tok,
		CreatedAt: time.Now(),
	}
}

func TestSubmitOpensPosition(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, sink := testCoordinator(t, placer)

	order := reservedOrder(t, ledger, "EURUSD", 50)
	pos, err := coord.Submit(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.Equal(t, "brk-1", pos.OrderID)
	assert.Equal(t, 1, coord.OpenCount())
	assert.Equal(t, pos.ID, placer.lastOrder().ClientID)

	require.Len(t, sink.opened, 1)
	assert.Equal(t, pos.ID, sink.opened[0].ID)
}

func TestSubmitRejectedReleasesStake(t *testing.T) {
	placer := &fakePlacer{err: fmt.Errorf("broker: %w", domain.ErrOrderRejected)}
	coord, ledger, sink := testCoordinator(t, placer)
	before := ledger.Snapshot()

	order := reservedOrder(t, ledger, "EURUSD", 50)
	pos, err := coord.Submit(context.Background(), order)
	require.ErrorIs(t, err, domain.ErrOrderRejected)

	assert.Equal(t, domain.PositionStatusVoid, pos.Status)
	assert.Zero(t, coord.OpenCount())

	// Compensating release: ledger state is exactly as before the reserve.
	after := ledger.Snapshot()
	assert.Equal(t, before.BankBalance, after.BankBalance)
	assert.Equal(t, before.OpenExposureTotal, after.OpenExposureTotal)
	assert.Zero(t, ledger.PendingReservations())

	require.Equal(t, 1, sink.closedCount())
	assert.Equal(t, domain.PositionStatusVoid, sink.closedAt(0).pos.Status)
	assert.Zero(t, sink.closedAt(0).pnl)
}

func TestSubmitTimeoutReleasesStake(t *testing.T) {
	placer := &fakePlacer{block: time.Second}
	coord, ledger, _ := testCoordinator(t, placer)

	order := reservedOrder(t, ledger, "EURUSD", 50)
	_, err := coord.Submit(context.Background(), order)
	require.Error(t, err)

	assert.Zero(t, ledger.PendingReservations())
	assert.Zero(t, ledger.Snapshot().OpenExposureTotal)
}

func TestSettlementAppliesOnce(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, sink := testCoordinator(t, placer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()

	order := reservedOrder(t, ledger, "EURUSD", 50)
	pos, err := coord.Submit(ctx, order)
	require.NoError(t, err)

	ev := domain.SettlementEvent{
		PositionID: pos.ID,
		OrderID:    pos.OrderID,
		Outcome:    domain.OutcomeWon,
		Payout:     42.5,
		ReceivedAt: time.Now().UTC(),
	}
	coord.SubmitSettlement(ev)
	coord.SubmitSettlement(ev) // at-least-once redelivery
	coord.SubmitSettlement(ev)

	require.Eventually(t, func() bool {
		return coord.OpenCount() == 0 && sink.closedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give duplicates a moment to be (not) processed, then check PnL
	// moved exactly once.
	time.Sleep(50 * time.Millisecond)
	snap := ledger.Snapshot()
	assert.InDelta(t, 1042.5, snap.BankBalance, 1e-9)
	assert.InDelta(t, 42.5, snap.DailyRealizedPnL, 1e-9)
	assert.Equal(t, 1, sink.closedCount())
	assert.Equal(t, domain.PositionStatusWon, sink.closedAt(0).pos.Status)
	assert.InDelta(t, 42.5, sink.closedAt(0).pnl, 1e-9)

	cancel()
	<-done
}

func TestSettlementByOrderIDOnly(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, sink := testCoordinator(t, placer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	order := reservedOrder(t, ledger, "GBPUSD", 30)
	pos, err := coord.Submit(ctx, order)
	require.NoError(t, err)

	// Brokers that do not echo the client reference only send their own
	// order ID.
	coord.SubmitSettlement(domain.SettlementEvent{
		OrderID: pos.OrderID,
		Outcome: domain.OutcomeLost,
	})

	require.Eventually(t, func() bool {
		return sink.closedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	snap := ledger.Snapshot()
	assert.InDelta(t, 970.0, snap.BankBalance, 1e-9)
	assert.InDelta(t, -30.0, sink.closedAt(0).pnl, 1e-9)
}

func TestUnknownSettlementDropped(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, sink := testCoordinator(t, placer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	coord.SubmitSettlement(domain.SettlementEvent{
		PositionID: "never-opened",
		Outcome:    domain.OutcomeWon,
		Payout:     1000,
	})

	time.Sleep(100 * time.Millisecond)
	snap := ledger.Snapshot()
	assert.Equal(t, 1000.0, snap.BankBalance)
	assert.Zero(t, sink.closedCount())
}

func TestVoidSettlement(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, sink := testCoordinator(t, placer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	order := reservedOrder(t, ledger, "USDJPY", 20)
	pos, err := coord.Submit(ctx, order)
	require.NoError(t, err)

	coord.SubmitSettlement(domain.SettlementEvent{
		PositionID: pos.ID,
		Outcome:    domain.OutcomeVoid,
	})

	require.Eventually(t, func() bool {
		return sink.closedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	snap := ledger.Snapshot()
	assert.Equal(t, 1000.0, snap.BankBalance)
	assert.Zero(t, snap.DailyRealizedPnL)
	assert.Equal(t, domain.PositionStatusVoid, sink.closedAt(0).pos.Status)
}

func TestDrainProcessesBufferedSettlements(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, sink := testCoordinator(t, placer)

	order := reservedOrder(t, ledger, "EURUSD", 50)
	ctx, cancel := context.WithCancel(context.Background())
	pos, err := coord.Submit(ctx, order)
	require.NoError(t, err)

	// Queue the settlement before the loop ever runs, then run with an
	// already-cancelled context: drain must still apply it.
	coord.SubmitSettlement(domain.SettlementEvent{
		PositionID: pos.ID,
		Outcome:    domain.OutcomeWon,
		Payout:     40,
	})
	cancel()
	err = coord.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, sink.closedCount())
	assert.InDelta(t, 1040.0, ledger.Snapshot().BankBalance, 1e-9)
}

func TestOpenPositions(t *testing.T) {
	placer := &fakePlacer{}
	coord, ledger, _ := testCoordinator(t, placer)

	for _, asset := range []string{"EURUSD", "GBPUSD"} {
		order := reservedOrder(t, ledger, asset, 25)
		_, err := coord.Submit(context.Background(), order)
		require.NoError(t, err)
	}

	open := coord.OpenPositions()
	assert.Len(t, open, 2)
	for _, p := range open {
		assert.Equal(t, domain.PositionStatusOpen, p.Status)
	}
}
