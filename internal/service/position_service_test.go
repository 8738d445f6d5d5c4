package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

func newPositionFixture() (*PositionService, *memPositions, *memTrades, *memBus, *memAudit, *StatsService) {
	logger := slog.New(slog.DiscardHandler)
	positions := newMemPositions()
	trades := &memTrades{}
	bus := newMemBus()
	audit := &memAudit{}
	stats := NewStatsService(logger)
	balances := fixedBalance{state: domain.RiskState{BankBalance: 1042.5}}

	svc := NewPositionService(positions, trades, bus, audit, balances, stats, logger)
	return svc, positions, trades, bus, audit, stats
}

func openPos(id string) domain.Position {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return domain.Position{
		ID:        id,
		OrderID:   "brk-1",
		AssetID:   "EURUSD",
		Direction: domain.DirectionUp,
		Stake:     50,
		Status:    domain.PositionStatusOpen,
		OpenedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}
}

func TestPositionOpenedPersistsAndPublishes(t *testing.T) {
	svc, positions, _, bus, audit, _ := newPositionFixture()
	ctx := context.Background()

	require.NoError(t, svc.PositionOpened(ctx, openPos("pos-1")))

	stored, err := positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, stored.Status)

	events := bus.channel("positions")
	require.Len(t, events, 1)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(events[0], &evt))
	assert.Equal(t, "position_opened", evt["event"])
	assert.Equal(t, "pos-1", evt["position_id"])

	assert.Equal(t, []string{"position_opened"}, audit.names())
}

func TestPositionOpenedDuplicateFails(t *testing.T) {
	svc, _, _, _, _, _ := newPositionFixture()
	ctx := context.Background()

	require.NoError(t, svc.PositionOpened(ctx, openPos("pos-1")))
	assert.ErrorIs(t, svc.PositionOpened(ctx, openPos("pos-1")), domain.ErrAlreadyExists)
}

func TestPositionClosedWritesTradeLog(t *testing.T) {
	svc, positions, trades, bus, _, stats := newPositionFixture()
	ctx := context.Background()

	pos := openPos("pos-1")
	require.NoError(t, svc.PositionOpened(ctx, pos))

	settled := pos.ExpiresAt.Add(2 * time.Second)
	pos.Status = domain.PositionStatusWon
	pos.Payout = 42.5
	pos.SettledAt = &settled

	require.NoError(t, svc.PositionClosed(ctx, pos, 42.5))

	stored, err := positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusWon, stored.Status)

	rows := trades.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "pos-1", rows[0].PositionID)
	assert.Equal(t, domain.OutcomeWon, rows[0].Outcome)
	assert.Equal(t, 42.5, rows[0].PnL)
	assert.Equal(t, 1042.5, rows[0].BalanceAfter)
	assert.Equal(t, settled, rows[0].SettledAt)

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.Wins)
	assert.Equal(t, 42.5, snap.NetPnL)

	events := bus.channel("positions")
	require.Len(t, events, 2)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(events[1], &evt))
	assert.Equal(t, "position_settled", evt["event"])
	assert.Equal(t, "won", evt["outcome"])
}

func TestPositionClosedVoid(t *testing.T) {
	svc, _, trades, _, _, stats := newPositionFixture()
	ctx := context.Background()

	// Compensated submission: voided before it ever opened.
	pos := openPos("pos-2")
	pos.Status = domain.PositionStatusPending
	require.NoError(t, svc.PositionOpened(ctx, pos))

	pos.Status = domain.PositionStatusVoid
	now := time.Now().UTC()
	pos.SettledAt = &now
	require.NoError(t, svc.PositionClosed(ctx, pos, 0))

	rows := trades.all()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OutcomeVoid, rows[0].Outcome)
	assert.Zero(t, rows[0].PnL)

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.Voids)
	assert.Zero(t, snap.Wins)
}

func TestPositionClosedWithoutRowCreatesVoid(t *testing.T) {
	svc, positions, trades, _, _, _ := newPositionFixture()
	ctx := context.Background()

	// Failed submission: the compensating close arrives for a position that
	// never reached the store.
	pos := openPos("pos-never-opened")
	pos.Status = domain.PositionStatusVoid
	now := time.Now().UTC()
	pos.SettledAt = &now

	require.NoError(t, svc.PositionClosed(ctx, pos, 0))

	stored, err := positions.GetByID(ctx, "pos-never-opened")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusVoid, stored.Status)

	rows := trades.all()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OutcomeVoid, rows[0].Outcome)
}

func TestPositionClosedTerminalAbsorbs(t *testing.T) {
	svc, _, trades, _, _, _ := newPositionFixture()
	ctx := context.Background()

	pos := openPos("pos-1")
	require.NoError(t, svc.PositionOpened(ctx, pos))

	pos.Status = domain.PositionStatusWon
	pos.Payout = 42.5
	now := time.Now().UTC()
	pos.SettledAt = &now
	require.NoError(t, svc.PositionClosed(ctx, pos, 42.5))

	// A repeated close for the settled position must not rewrite the row or
	// grow the trade log.
	pos.Status = domain.PositionStatusLost
	err := svc.PositionClosed(ctx, pos, -pos.Stake)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, trades.all(), 1)
}

type recordingAlerter struct {
	recs []domain.TradeRecord
}

func (r *recordingAlerter) Settlement(ctx context.Context, rec domain.TradeRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

func TestPositionClosedAlerts(t *testing.T) {
	svc, _, _, _, _, _ := newPositionFixture()
	alerter := &recordingAlerter{}
	svc.SetAlerts(alerter)
	ctx := context.Background()

	pos := openPos("pos-1")
	require.NoError(t, svc.PositionOpened(ctx, pos))

	pos.Status = domain.PositionStatusWon
	pos.Payout = 42.5
	now := time.Now().UTC()
	pos.SettledAt = &now
	require.NoError(t, svc.PositionClosed(ctx, pos, 42.5))

	require.Len(t, alerter.recs, 1)
	assert.Equal(t, "pos-1", alerter.recs[0].PositionID)
	assert.Equal(t, 42.5, alerter.recs[0].PnL)
}

func TestPositionReads(t *testing.T) {
	svc, _, _, _, _, _ := newPositionFixture()
	ctx := context.Background()

	open := openPos("pos-open")
	require.NoError(t, svc.PositionOpened(ctx, open))

	done := openPos("pos-done")
	require.NoError(t, svc.PositionOpened(ctx, done))
	done.Status = domain.PositionStatusLost
	now := time.Now().UTC()
	done.SettledAt = &now
	require.NoError(t, svc.PositionClosed(ctx, done, -done.Stake))

	openList, err := svc.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, openList, 1)
	assert.Equal(t, "pos-open", openList[0].ID)

	history, err := svc.History(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "pos-done", history[0].ID)

	log, err := svc.TradeLog(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, -50.0, log[0].PnL)
}
