package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

func TestPageQueryZeroOpts(t *testing.T) {
	query, args := pageQuery(
		`SELECT id FROM audit_log`, "created_at", "created_at DESC",
		nil, domain.ListOpts{})

	assert.Equal(t, `SELECT id FROM audit_log ORDER BY created_at DESC`, query)
	assert.Empty(t, args)
}

func TestPageQueryFixedPredicate(t *testing.T) {
	query, args := pageQuery(
		`SELECT id FROM positions`, "settled_at", "settled_at DESC",
		[]string{"status IN ('won', 'lost', 'void')"},
		domain.ListOpts{Limit: 50})

	assert.Equal(t,
		`SELECT id FROM positions WHERE status IN ('won', 'lost', 'void')`+
			` ORDER BY settled_at DESC LIMIT $1`,
		query)
	assert.Equal(t, []any{50}, args)
}

func TestPageQueryFullWindow(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	query, args := pageQuery(
		`SELECT id FROM trade_log`, "settled_at", "settled_at DESC, id DESC",
		nil, domain.ListOpts{Since: &since, Until: &until, Limit: 20, Offset: 40})

	assert.Equal(t,
		`SELECT id FROM trade_log WHERE settled_at >= $1 AND settled_at <= $2`+
			` ORDER BY settled_at DESC, id DESC LIMIT $3 OFFSET $4`,
		query)
	assert.Equal(t, []any{since, until, 20, 40}, args)
}
