package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Common schedules.
const (
	// EveryMonday is midnight at the start of each matching week.
	EveryMonday = "0 0 * * 1"

	// EveryHour is the top of every hour.
	EveryHour = "0 * * * *"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule fires on a standard 5-field cron expression. Descriptors such
// as "@weekly" and a "CRON_TZ=" prefix are accepted.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
}

// ParseCronSchedule parses a cron expression.
func ParseCronSchedule(expr string) (*CronSchedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, schedule: s}, nil
}

// MustParseCronSchedule parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronSchedule(expr string) *CronSchedule {
	s, err := ParseCronSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the next activation strictly after t, in t's location.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// String returns the source expression.
func (s *CronSchedule) String() string {
	return s.expr
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule fires at a fixed interval after the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule. The interval must be positive.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the schedule in cron descriptor form.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}
