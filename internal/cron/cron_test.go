package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsBadExpressions(t *testing.T) {
	cases := []string{
		"",
		"0 0 * *",
		"0 0 * * * *",
		"x 0 * * *",
		"0 0 1,x * *",
	}
	for _, expr := range cases {
		_, err := Parse(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}

func TestNextDailyMidnight(t *testing.T) {
	after := time.Date(2026, 8, 25, 14, 30, 12, 0, time.UTC)

	next, err := Next("0 0 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), next)
}

func TestNextIsStrictlyAfter(t *testing.T) {
	// Exactly at the boundary: the next firing is tomorrow, not now.
	after := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	next, err := Next("0 0 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), next)
}

func TestNextMonthlySchedule(t *testing.T) {
	after := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// 03:00 on the 1st of every month.
	next, err := Next("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCommaList(t *testing.T) {
	sched, err := Parse("0,30 * * * *")
	require.NoError(t, err)

	after := time.Date(2026, 8, 25, 14, 5, 0, 0, time.UTC)
	next, err := sched.Next(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC), next)

	next, err = sched.Next(next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC), next)
}

func TestMatches(t *testing.T) {
	sched, err := Parse("0 0 * * 1")
	require.NoError(t, err)

	// 2026-08-31 is a Monday.
	assert.True(t, sched.Matches(time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, sched.Matches(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)))
	assert.False(t, sched.Matches(time.Date(2026, 8, 31, 0, 1, 0, 0, time.UTC)))
}
