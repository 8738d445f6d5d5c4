// Package cron parses 5-field cron expressions and computes the next firing
// time. It covers the schedules this bot actually uses, the daily risk reset
// and the archive run, so only wildcards and comma lists are supported.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one parsed cron field that can match against a value.
type field struct {
	wildcard bool
	values   []int
}

func (f field) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseField parses a single cron field (e.g. "0", "*", "1,15").
func parseField(s string) (field, error) {
	if s == "*" {
		return field{wildcard: true}, nil
	}

	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return field{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return field{values: values}, nil
}

// Schedule is a parsed cron expression in the standard 5-field format:
// "minute hour day-of-month month day-of-week".
type Schedule struct {
	minute     field
	hour       field
	dayOfMonth field
	month      field
	dayOfWeek  field
}

// Parse parses a 5-field cron expression.
func Parse(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseField(fields[0])
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseField(fields[1])
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseField(fields[2])
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseField(fields[3])
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseField(fields[4])
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return Schedule{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// Matches reports whether t satisfies all five fields.
func (s Schedule) Matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}

// Next returns the first time strictly after 'after' that matches the
// schedule. It searches minute-by-minute up to one year ahead.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if s.Matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year")
}

// Next is a convenience wrapper that parses expr and returns the first
// matching time after 'after'.
func Next(expr string, after time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	next, err := sched.Next(after)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron %q: %w", expr, err)
	}
	return next, nil
}
