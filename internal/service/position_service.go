// Package service holds the thin coordination layer between the trading
// engine and its storage, cache, and messaging backends. Services own no
// trading decisions; they persist, publish, and tally what the engine did.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// BalanceSource exposes the risk state snapshot the trade log stamps onto
// each settled row.
type BalanceSource interface {
	Snapshot() domain.RiskState
}

// SettlementAlerter pushes settled-trade notifications to operators.
type SettlementAlerter interface {
	Settlement(ctx context.Context, rec domain.TradeRecord) error
}

// PositionService persists position lifecycle updates coming off the
// execution coordinator and serves position reads for the dashboard.
type PositionService struct {
	positions domain.PositionStore
	trades    domain.TradeLogStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	balances  BalanceSource
	stats     *StatsService
	alerts    SettlementAlerter
	logger    *slog.Logger
}

// NewPositionService creates a PositionService. stats may be nil when no
// tallying is wanted (archive and backfill modes).
func NewPositionService(
	positions domain.PositionStore,
	trades domain.TradeLogStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	balances BalanceSource,
	stats *StatsService,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		trades:    trades,
		bus:       bus,
		audit:     audit,
		balances:  balances,
		stats:     stats,
		logger:    logger,
	}
}

// SetAlerts installs the optional settlement alerter. Must be called before
// the first settlement flows through.
func (s *PositionService) SetAlerts(alerts SettlementAlerter) {
	s.alerts = alerts
}

// PositionOpened persists a freshly opened position and announces it.
func (s *PositionService) PositionOpened(ctx context.Context, pos domain.Position) error {
	if err := s.positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("position_service: create position: %w", err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":       "position_opened",
		"position_id": pos.ID,
		"asset_id":    pos.AssetID,
		"direction":   string(pos.Direction),
		"stake":       pos.Stake,
		"expires_at":  pos.ExpiresAt.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "positions", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "position_service: publish open event failed",
			slog.String("position_id", pos.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"asset_id":    pos.AssetID,
		"direction":   string(pos.Direction),
		"stake":       pos.Stake,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	return nil
}

// PositionClosed persists the terminal position state and appends the trade
// log row. Voided positions (compensated submissions, at-the-money expiries)
// are logged too, with zero PnL. Terminal rows absorb: a second settlement
// for the same position is refused with domain.ErrInvalidTransition.
func (s *PositionService) PositionClosed(ctx context.Context, pos domain.Position, pnl float64) error {
	stored, err := s.positions.GetByID(ctx, pos.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Submissions that failed before opening never got a row. The void
		// outcome still belongs in the history.
		if err := s.positions.Create(ctx, pos); err != nil {
			return fmt.Errorf("position_service: create voided position %q: %w", pos.ID, err)
		}
	case err != nil:
		return fmt.Errorf("position_service: load position %q: %w", pos.ID, err)
	case !domain.CanTransition(stored.Status, pos.Status):
		return fmt.Errorf("position_service: %s settlement for %s position %q: %w",
			pos.Status, stored.Status, pos.ID, domain.ErrInvalidTransition)
	default:
		if err := s.positions.Update(ctx, pos); err != nil {
			return fmt.Errorf("position_service: update position %q: %w", pos.ID, err)
		}
	}

	settledAt := time.Now().UTC()
	if pos.SettledAt != nil {
		settledAt = *pos.SettledAt
	}
	rec := domain.TradeRecord{
		PositionID:   pos.ID,
		AssetID:      pos.AssetID,
		Direction:    pos.Direction,
		Stake:        pos.Stake,
		Outcome:      outcomeForStatus(pos.Status),
		Payout:       pos.Payout,
		PnL:          pnl,
		BalanceAfter: s.balances.Snapshot().BankBalance,
		SettledAt:    settledAt,
	}
	if err := s.trades.Append(ctx, rec); err != nil {
		return fmt.Errorf("position_service: append trade log for %q: %w", pos.ID, err)
	}

	if s.stats != nil {
		s.stats.Record(rec)
	}
	if s.alerts != nil {
		if alertErr := s.alerts.Settlement(ctx, rec); alertErr != nil {
			s.logger.WarnContext(ctx, "position_service: settlement alert failed",
				slog.String("position_id", pos.ID),
				slog.String("error", alertErr.Error()),
			)
		}
	}

	evt, _ := json.Marshal(map[string]any{
		"event":         "position_settled",
		"position_id":   pos.ID,
		"asset_id":      pos.AssetID,
		"outcome":       string(rec.Outcome),
		"payout":        pos.Payout,
		"pnl":           pnl,
		"balance_after": rec.BalanceAfter,
	})
	if pubErr := s.bus.Publish(ctx, "positions", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "position_service: publish settle event failed",
			slog.String("position_id", pos.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "position_settled", map[string]any{
		"position_id":   pos.ID,
		"asset_id":      pos.AssetID,
		"outcome":       string(rec.Outcome),
		"pnl":           pnl,
		"balance_after": rec.BalanceAfter,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	return nil
}

// OpenPositions returns every position persisted as pending or open.
func (s *PositionService) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open: %w", err)
	}
	return positions, nil
}

// History returns settled positions, newest first.
func (s *PositionService) History(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListHistory(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list history: %w", err)
	}
	return positions, nil
}

// TradeLog returns settled trade rows, newest first.
func (s *PositionService) TradeLog(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	records, err := s.trades.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list trade log: %w", err)
	}
	return records, nil
}

func outcomeForStatus(st domain.PositionStatus) domain.Outcome {
	switch st {
	case domain.PositionStatusWon:
		return domain.OutcomeWon
	case domain.PositionStatusLost:
		return domain.OutcomeLost
	default:
		return domain.OutcomeVoid
	}
}
