package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

type memPositions struct {
	mu   sync.Mutex
	byID map[string]domain.Position
}

func newMemPositions() *memPositions {
	return &memPositions{byID: make(map[string]domain.Position)}
}

func (m *memPositions) Create(ctx context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[pos.ID]; ok {
		return fmt.Errorf("position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	m.byID[pos.ID] = pos
	return nil
}

func (m *memPositions) Update(ctx context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[pos.ID]; !ok {
		return fmt.Errorf("position %s: %w", pos.ID, domain.ErrNotFound)
	}
	m.byID[pos.ID] = pos
	return nil
}

func (m *memPositions) GetByID(ctx context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.byID[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}
	return pos, nil
}

func (m *memPositions) ListOpen(ctx context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.byID {
		if !pos.Status.Terminal() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memPositions) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.byID {
		if pos.Status.Terminal() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memPositions) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.byID {
		if pos.Status.Terminal() && pos.SettledAt != nil && pos.SettledAt.Before(before) {
			out = append(out, pos)
		}
	}
	return out, nil
}

type memTrades struct {
	mu   sync.Mutex
	rows []domain.TradeRecord
}

func (m *memTrades) Append(ctx context.Context, rec domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memTrades) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TradeRecord
	for i := len(m.rows) - 1; i >= 0; i-- {
		rec := m.rows[i]
		if opts.Since != nil && rec.SettledAt.Before(*opts.Since) {
			continue
		}
		out = append(out, rec)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *memTrades) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TradeRecord
	for _, rec := range m.rows {
		if rec.SettledAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memTrades) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memTrades) all() []domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TradeRecord, len(m.rows))
	copy(out, m.rows)
	return out
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]domain.Setting
}

func newMemSettings() *memSettings {
	return &memSettings{rows: make(map[string]domain.Setting)}
}

func (m *memSettings) Get(ctx context.Context, key string) (domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[key]
	if !ok {
		return domain.Setting{}, fmt.Errorf("setting %s: %w", key, domain.ErrNotFound)
	}
	return s, nil
}

func (m *memSettings) Upsert(ctx context.Context, s domain.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.Key] = s
	return nil
}

func (m *memSettings) List(ctx context.Context) ([]domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Setting, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	return out, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEntry
}

func (m *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, domain.AuditEntry{
		ID:        int64(len(m.events) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memAudit) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Event)
	}
	return out
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (m *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

func (m *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return m.Publish(ctx, "stream:"+stream, payload)
}

func (m *memBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamEntry, error) {
	return nil, nil
}

func (m *memBus) channel(name string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.published[name]))
	copy(out, m.published[name])
	return out
}

type fixedBalance struct {
	state domain.RiskState
}

func (f fixedBalance) Snapshot() domain.RiskState { return f.state }

type fakeTuning struct {
	mu        sync.Mutex
	weights   map[string]float64
	threshold float64
}

func (f *fakeTuning) SetWeights(w map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weights = w
}

func (f *fakeTuning) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

func (f *fakeTuning) Weights() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weights
}

func (f *fakeTuning) Threshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}
