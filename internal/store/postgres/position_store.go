package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// PositionStore keeps the positions table, the engine's record of every
// contract from submission through settlement.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, order_id, asset_id, direction, stake, payout,
	status, opened_at, expires_at, settled_at`

// readPosition scans one row in positionCols order.
func readPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, status string

	err := row.Scan(
		&p.ID, &p.OrderID, &p.AssetID, &direction,
		&p.Stake, &p.Payout, &status,
		&p.OpenedAt, &p.ExpiresAt, &p.SettledAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func readPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := readPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// queryPositions runs a multi-row select and scans the result. what names
// the result set in error messages.
func (s *PositionStore) queryPositions(ctx context.Context, what, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", what, err)
	}
	defer rows.Close()

	positions, err := readPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
	}
	return positions, nil
}

// Create records a freshly submitted position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, order_id, asset_id, direction, stake, payout,
			status, opened_at, expires_at, settled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.OrderID, p.AssetID, string(p.Direction),
		p.Stake, p.Payout, string(p.Status),
		p.OpenedAt, p.ExpiresAt, p.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update rewrites every mutable column of an existing position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			order_id   = $2,
			direction  = $3,
			stake      = $4,
			payout     = $5,
			status     = $6,
			expires_at = $7,
			settled_at = $8,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.OrderID, string(p.Direction),
		p.Stake, p.Payout, string(p.Status),
		p.ExpiresAt, p.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id)

	p, err := readPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns all positions not yet settled, newest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, "open positions",
		`SELECT `+positionCols+` FROM positions
		 WHERE status IN ('pending', 'open')
		 ORDER BY opened_at DESC`)
}

// ListHistory returns settled positions with pagination and optional time
// filtering on the settlement timestamp.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := pageQuery(
		`SELECT `+positionCols+` FROM positions`,
		"settled_at", "settled_at DESC",
		[]string{"status IN ('won', 'lost', 'void')"}, opts)

	return s.queryPositions(ctx, "position history", query, args...)
}

// ListSettledBefore returns settled positions whose settlement is older than
// the cutoff. The archiver feeds on it.
func (s *PositionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	return s.queryPositions(ctx, "settled positions",
		`SELECT `+positionCols+` FROM positions
		 WHERE status IN ('won', 'lost', 'void') AND settled_at < $1
		 ORDER BY settled_at ASC`, before)
}

// DeleteSettledBefore removes archived settled positions older than the
// cutoff and returns how many rows went away.
func (s *PositionStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions
		 WHERE status IN ('won', 'lost', 'void') AND settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled positions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
