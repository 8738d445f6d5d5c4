package allocator

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
	"github.com/alanyoungcy/optionbot/internal/risk"
)

func testSetup(t *testing.T) (*Allocator, *risk.Ledger) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ledger := risk.NewLedger(risk.Config{
		BankSeed:        1000,
		MaxExposureFrac: 0.20,
		StopLossFrac:    0.40,
		StopGainFrac:    1.00,
	}, logger)
	alloc := New(Config{
		MinStake:        1.00,
		MaxExposureFrac: 0.20,
		Expiration:      time.Minute,
	}, ledger, logger)
	return alloc, ledger
}

func sig(asset string, dir domain.Direction, conf float64) domain.Signal {
	return domain.Signal{
		AssetID:     asset,
		Direction:   dir,
		Confidence:  conf,
		GeneratedAt: time.Now(),
	}
}

func TestAllocateDividesCapAcrossAssets(t *testing.T) {
	alloc, ledger := testSetup(t)

	signals := []domain.Signal{
		sig("EURUSD", domain.DirectionUp, 1.0),
		sig("GBPUSD", domain.DirectionDown, 1.0),
		sig("USDJPY", domain.DirectionUp, 1.0),
		sig("AUDUSD", domain.DirectionDown, 1.0),
	}
	orders := alloc.Allocate(signals, time.Now())

	require.Len(t, orders, 4)
	for _, o := range orders {
		// 20% of 1000 split four ways.
		assert.LessOrEqual(t, o.Stake, 50.0)
		assert.Equal(t, time.Minute, o.Expiry)
		assert.NotEmpty(t, o.Token.ID)
	}
	assert.InDelta(t, 200.0, ledger.Snapshot().OpenExposureTotal, 1e-9)
}

func TestAllocateStrongestFirst(t *testing.T) {
	alloc, _ := testSetup(t)

	signals := []domain.Signal{
		sig("GBPUSD", domain.DirectionDown, 0.4),
		sig("EURUSD", domain.DirectionUp, 0.9),
	}
	orders := alloc.Allocate(signals, time.Now())

	require.Len(t, orders, 2)
	assert.Equal(t, "EURUSD", orders[0].AssetID)
	assert.Equal(t, "GBPUSD", orders[1].AssetID)
	// The stronger signal sizes against full capacity, the weaker one
	// against what is left.
	assert.Greater(t, orders[0].Stake, orders[1].Stake)
}

func TestAllocateTieBreaksOnAssetID(t *testing.T) {
	alloc, _ := testSetup(t)

	signals := []domain.Signal{
		sig("GBPUSD", domain.DirectionUp, 0.8),
		sig("EURUSD", domain.DirectionUp, 0.8),
	}
	orders := alloc.Allocate(signals, time.Now())

	require.Len(t, orders, 2)
	assert.Equal(t, "EURUSD", orders[0].AssetID)
	assert.Equal(t, "GBPUSD", orders[1].AssetID)
}

func TestAllocateIgnoresNonActionable(t *testing.T) {
	alloc, _ := testSetup(t)

	signals := []domain.Signal{
		sig("EURUSD", domain.DirectionNone, 0.9),
		{AssetID: "GBPUSD", Direction: domain.DirectionNone},
	}
	assert.Empty(t, alloc.Allocate(signals, time.Now()))
	assert.Nil(t, alloc.Allocate(nil, time.Now()))
}

func TestAllocateSkipsBelowMinimumStake(t *testing.T) {
	alloc, ledger := testSetup(t)

	// Eat almost all capacity so the sized stake lands under the broker
	// minimum.
	_, err := ledger.Reserve("USDJPY", 199.5)
	require.NoError(t, err)

	orders := alloc.Allocate([]domain.Signal{sig("EURUSD", domain.DirectionUp, 0.7)}, time.Now())
	assert.Empty(t, orders)
	assert.Equal(t, 1, ledger.PendingReservations())
}

func TestAllocateStopsWhenHalted(t *testing.T) {
	alloc, ledger := testSetup(t)
	ledger.ForceHalt(domain.HaltReasonKillSwitch)

	orders := alloc.Allocate([]domain.Signal{
		sig("EURUSD", domain.DirectionUp, 0.9),
		sig("GBPUSD", domain.DirectionDown, 0.8),
	}, time.Now())

	assert.Empty(t, orders)
	assert.Zero(t, ledger.PendingReservations())
}

func TestAllocateConfidenceScalesStake(t *testing.T) {
	alloc, _ := testSetup(t)

	orders := alloc.Allocate([]domain.Signal{sig("EURUSD", domain.DirectionUp, 0.6)}, time.Now())

	require.Len(t, orders, 1)
	// min(200 per-asset cap, 200 remaining * 0.6) floored to cents.
	assert.InDelta(t, 120.0, orders[0].Stake, 1e-9)
	assert.Equal(t, domain.DirectionUp, orders[0].Direction)
	assert.InDelta(t, 0.6, orders[0].Confidence, 1e-9)
}
