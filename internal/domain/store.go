package domain

import (
	"context"
	"time"
)

// ListOpts narrows a list query. Zero values leave the corresponding
// dimension unbounded.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time // inclusive lower bound on the row's time column
	Until  *time.Time // inclusive upper bound
}

// PositionStore persists positions across their lifecycle.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// TradeLogStore persists the append-only settled-trade log.
type TradeLogStore interface {
	Append(ctx context.Context, rec TradeRecord) error
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	Count(ctx context.Context) (int64, error)
}

// Setting is a named runtime-tunable configuration blob.
type Setting struct {
	Key       string
	Value     map[string]any
	UpdatedAt time.Time
}

// SettingsStore persists dashboard-tunable settings (indicator weights,
// confidence threshold, asset enable flags).
type SettingsStore interface {
	Get(ctx context.Context, key string) (Setting, error)
	Upsert(ctx context.Context, s Setting) error
	List(ctx context.Context) ([]Setting, error)
}

// AuditEntry is one recorded engine event.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records engine events for later inspection. Rows are
// append-only.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
