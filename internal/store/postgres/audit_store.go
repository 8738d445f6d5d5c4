package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Each entry is a
// named event plus a free-form detail map kept as JSONB, so halts, resets,
// voids, and settings changes can be reconstructed after the fact.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log records a single audit event. A nil detail map is stored as SQL null.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	var payload []byte
	if detail != nil {
		var err error
		payload, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("postgres: encode audit detail for %s: %w", event, err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`,
		event, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: record audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first, optionally bounded and paginated
// through opts.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := pageQuery(
		`SELECT id, event, detail, created_at FROM audit_log`,
		"created_at", "created_at DESC", nil, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit log: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit log: %w", err)
	}
	return entries, nil
}

func scanAuditRows(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Detail); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.AuditStore = (*AuditStore)(nil)
