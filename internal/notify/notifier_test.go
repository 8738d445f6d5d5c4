package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	bodies []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNotifyFansOutToAllSenders(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	dc := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{tg, dc}, nil, discard())

	require.NoError(t, n.Notify(context.Background(), EventHalt, "title", "body"))
	assert.Equal(t, []string{"title"}, tg.titles)
	assert.Equal(t, []string{"title"}, dc.titles)
}

func TestNotifyFiltersEvents(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{tg}, []string{EventHalt}, discard())

	require.NoError(t, n.Notify(context.Background(), EventSettlement, "skip", "skip"))
	require.NoError(t, n.Notify(context.Background(), EventHalt, "keep", "keep"))

	assert.Equal(t, []string{"keep"}, tg.titles)
}

func TestNotifyCollectsSenderFailures(t *testing.T) {
	bad := &recordingSender{name: "telegram", err: errors.New("429")}
	good := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventHalt, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, []string{"t"}, good.titles, "one failing sender must not block the rest")
}

func TestHaltAlertTitles(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	alerts := NewAlerts(NewNotifier([]Sender{tg}, nil, discard()), 0)

	state := domain.RiskState{
		BankBalance:       940,
		DailyStartBalance: 1000,
		DailyRealizedPnL:  -400,
	}
	require.NoError(t, alerts.Halt(context.Background(), domain.HaltReasonStopLoss, state))

	require.Len(t, tg.titles, 1)
	assert.Equal(t, "Trading halted: stop loss", tg.titles[0])
	assert.Contains(t, tg.bodies[0], "-400.00")
}

func TestSettlementAlertThreshold(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	alerts := NewAlerts(NewNotifier([]Sender{tg}, nil, discard()), 10)

	small := domain.TradeRecord{AssetID: "EURUSD", Outcome: domain.OutcomeWon, PnL: 4.2}
	big := domain.TradeRecord{AssetID: "EURUSD", Direction: domain.DirectionUp, Outcome: domain.OutcomeLost, Stake: 25, PnL: -25}

	require.NoError(t, alerts.Settlement(context.Background(), small))
	require.NoError(t, alerts.Settlement(context.Background(), big))

	require.Len(t, tg.titles, 1)
	assert.Equal(t, "Lost EURUSD -25.00", tg.titles[0])
}

func TestDailyResetAlert(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	alerts := NewAlerts(NewNotifier([]Sender{tg}, nil, discard()), 0)

	before := domain.RiskState{DailyRealizedPnL: 62.5}
	after := domain.RiskState{DailyStartBalance: 1062.5}
	require.NoError(t, alerts.DailyReset(context.Background(), before, after))

	require.Len(t, tg.titles, 1)
	assert.Equal(t, "Daily reset", tg.titles[0])
	assert.Contains(t, tg.bodies[0], "+62.50")
	assert.Contains(t, tg.bodies[0], "1062.50")
}
