package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get retrieves a single setting by key.
func (s *SettingsStore) Get(ctx context.Context, key string) (domain.Setting, error) {
	const query = `SELECT key, value, updated_at FROM settings WHERE key = $1`

	var setting domain.Setting
	var valueJSON []byte

	err := s.pool.QueryRow(ctx, query, key).Scan(&setting.Key, &valueJSON, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Setting{}, domain.ErrNotFound
		}
		return domain.Setting{}, fmt.Errorf("postgres: get setting %s: %w", key, err)
	}

	if valueJSON != nil {
		if err := json.Unmarshal(valueJSON, &setting.Value); err != nil {
			return domain.Setting{}, fmt.Errorf("postgres: unmarshal setting %s: %w", key, err)
		}
	}

	return setting, nil
}

// Upsert inserts or updates a setting. The Value map is stored as JSONB.
func (s *SettingsStore) Upsert(ctx context.Context, setting domain.Setting) error {
	valueJSON, err := json.Marshal(setting.Value)
	if err != nil {
		return fmt.Errorf("postgres: marshal setting %s: %w", setting.Key, err)
	}

	const query = `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query, setting.Key, valueJSON)
	if err != nil {
		return fmt.Errorf("postgres: upsert setting %s: %w", setting.Key, err)
	}
	return nil
}

// List returns all settings ordered by key.
func (s *SettingsStore) List(ctx context.Context) ([]domain.Setting, error) {
	const query = `SELECT key, value, updated_at FROM settings ORDER BY key`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settings: %w", err)
	}
	defer rows.Close()

	var settings []domain.Setting
	for rows.Next() {
		var setting domain.Setting
		var valueJSON []byte

		if err := rows.Scan(&setting.Key, &valueJSON, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan setting: %w", err)
		}
		if valueJSON != nil {
			if err := json.Unmarshal(valueJSON, &setting.Value); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal setting %s: %w", setting.Key, err)
			}
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settings rows: %w", err)
	}
	return settings, nil
}

var _ domain.SettingsStore = (*SettingsStore)(nil)
