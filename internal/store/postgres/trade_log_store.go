package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a new TradeLogStore backed by the given connection pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

const tradeLogSelectCols = `id, position_id, asset_id, direction, stake,
	outcome, payout, pnl, balance_after, settled_at`

func scanTradeLogRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var direction, outcome string
		if err := rows.Scan(
			&r.ID, &r.PositionID, &r.AssetID, &direction, &r.Stake,
			&outcome, &r.Payout, &r.PnL, &r.BalanceAfter, &r.SettledAt,
		); err != nil {
			return nil, err
		}
		r.Direction = domain.Direction(direction)
		r.Outcome = domain.Outcome(outcome)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Append inserts a settled-trade row. The trade log is append-only; a second
// row for the same position violates the unique index and surfaces as
// domain.ErrAlreadyExists.
func (s *TradeLogStore) Append(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_log (
			position_id, asset_id, direction, stake,
			outcome, payout, pnl, balance_after, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (position_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		rec.PositionID, rec.AssetID, string(rec.Direction), rec.Stake,
		string(rec.Outcome), rec.Payout, rec.PnL, rec.BalanceAfter, rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade record %s: %w", rec.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: append trade record %s: %w", rec.PositionID, domain.ErrAlreadyExists)
	}
	return nil
}

// List returns settled trades newest first with pagination and optional time filtering.
func (s *TradeLogStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := pageQuery(
		`SELECT `+tradeLogSelectCols+` FROM trade_log`,
		"settled_at", "settled_at DESC, id DESC", nil, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade log: %w", err)
	}
	defer rows.Close()

	recs, err := scanTradeLogRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade log: %w", err)
	}
	return recs, nil
}

// ListBefore returns all trades settled strictly before the cutoff, oldest
// first. Used by the archiver to build monthly JSONL files.
func (s *TradeLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeLogSelectCols + ` FROM trade_log
		WHERE settled_at < $1 ORDER BY settled_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade log before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	recs, err := scanTradeLogRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade log before: %w", err)
	}
	return recs, nil
}

// Count returns the total number of trade log rows.
func (s *TradeLogStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_log`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trade log: %w", err)
	}
	return n, nil
}

// DeleteBefore removes trades settled strictly before the cutoff and returns
// the number of rows deleted. Callers run this only after the corresponding
// archive upload has succeeded.
func (s *TradeLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trade_log WHERE settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade log before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.TradeLogStore = (*TradeLogStore)(nil)
