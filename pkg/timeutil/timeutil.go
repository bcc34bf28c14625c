// Package timeutil computes matching weeks (Monday to Sunday) in the
// service timezone. Every cycle, question set and chat expiry is keyed by
// these bounds.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultLocation is the service timezone when none is configured
// (UTC+5, no DST).
var DefaultLocation = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves an IANA zone name. An empty name yields DefaultLocation.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return DefaultLocation, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func in(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultLocation
	}
	return t.In(loc)
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := in(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// StartOfWeek returns Monday 00:00:00 of t's week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := in(t, loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)), loc)
}

// EndOfWeek returns Sunday 23:59:59.999 of t's week in loc.
// Millisecond precision survives a round trip through a Postgres timestamp.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	start := StartOfWeek(t, loc)
	return start.AddDate(0, 0, 7).Add(-time.Millisecond)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK
// ══════════════════════════════════════════════════════════════════════════════

// Week is one matching week, both bounds inclusive.
type Week struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the week containing t.
func WeekOf(t time.Time, loc *time.Location) Week {
	return Week{
		Start: StartOfWeek(t, loc),
		End:   EndOfWeek(t, loc),
	}
}

// Contains reports whether t falls inside the week.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Next returns the following week.
func (w Week) Next() Week {
	start := w.Start.AddDate(0, 0, 7)
	return Week{
		Start: start,
		End:   start.AddDate(0, 0, 7).Add(-time.Millisecond),
	}
}

// Key is a stable identifier for the week, e.g. "2026-W42".
func (w Week) Key() string {
	year, week := w.Start.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// String implements fmt.Stringer.
func (w Week) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}
