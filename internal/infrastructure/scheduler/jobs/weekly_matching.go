// Package jobs contains the scheduled jobs of the matching worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/blackout-hub/blackout/internal/application/command"
	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// CycleRunner runs one matching cycle.
type CycleRunner interface {
	Handle(ctx context.Context, cmd command.RunMatchingCycleCommand) (*command.RunMatchingCycleResult, error)
}

// Locker guards a job run across worker replicas. WithLock returns an error
// wrapping shared.ErrLockNotAcquired without calling fn when the lock is held.
type Locker interface {
	WithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// CycleObserver records cycle outcomes.
type CycleObserver interface {
	ObserveCycle(result *command.RunMatchingCycleResult, err error)
	LockSkipped(job string)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY MATCHING JOB
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyMatchingJob pairs the pool for the current week. It resolves the
// week's question set, takes the cycle lock and runs the cycle handler.
type WeeklyMatchingJob struct {
	// Dependencies
	runner       CycleRunner
	questionSets matching.QuestionSetReader
	locker       Locker
	observer     CycleObserver
	logger       *slog.Logger

	// Configuration
	config WeeklyMatchingConfig
	now    func() time.Time

	// State
	lastRunStats atomic.Pointer[WeeklyMatchingStats]
}

// WeeklyMatchingConfig contains configuration for the weekly matching job.
type WeeklyMatchingConfig struct {
	// Location defines where weeks start (Monday 00:00).
	Location *time.Location

	// LockTTL bounds how long a crashed worker can block the cycle.
	LockTTL time.Duration
}

// DefaultWeeklyMatchingConfig returns sensible defaults.
func DefaultWeeklyMatchingConfig() WeeklyMatchingConfig {
	return WeeklyMatchingConfig{
		Location: timeutil.DefaultLocation,
		LockTTL:  30 * time.Minute,
	}
}

// WeeklyMatchingStats summarizes the last run.
type WeeklyMatchingStats struct {
	Week       timeutil.Week
	CycleSetID string
	StartedAt  time.Time
	Duration   time.Duration

	// Skipped is set when no question set exists or another worker held the lock.
	Skipped    bool
	SkipReason string

	Matched   int
	Unmatched int
	Conflicts int
	Failures  int
	Err       error
}

// NewWeeklyMatchingJob creates a new weekly matching job. locker and
// observer may be nil.
func NewWeeklyMatchingJob(
	runner CycleRunner,
	questionSets matching.QuestionSetReader,
	locker Locker,
	observer CycleObserver,
	logger *slog.Logger,
	config WeeklyMatchingConfig,
) *WeeklyMatchingJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = timeutil.DefaultLocation
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultWeeklyMatchingConfig().LockTTL
	}

	return &WeeklyMatchingJob{
		runner:       runner,
		questionSets: questionSets,
		locker:       locker,
		observer:     observer,
		logger:       logger.With("job", "weekly_matching"),
		config:       config,
		now:          time.Now,
	}
}

// Name returns the job name.
func (j *WeeklyMatchingJob) Name() string {
	return "weekly_matching"
}

// Description returns a human-readable description.
func (j *WeeklyMatchingJob) Description() string {
	return "Pairs eligible participants for the current week"
}

// Run executes one weekly cycle. A week without a question set and a cycle
// already running elsewhere are skips, not failures.
func (j *WeeklyMatchingJob) Run(ctx context.Context) error {
	startedAt := j.now()
	week := timeutil.WeekOf(startedAt, j.config.Location)
	stats := &WeeklyMatchingStats{Week: week, StartedAt: startedAt}
	defer func() {
		stats.Duration = j.now().Sub(startedAt)
		j.lastRunStats.Store(stats)
	}()

	log := j.logger.With("week", week.String())

	cycleSetID, err := j.questionSets.FindForWeek(ctx, week.Start, week.End)
	if err != nil {
		if errors.Is(err, shared.ErrQuestionSetNotFound) {
			log.Warn("no question set for week, skipping cycle")
			stats.Skipped, stats.SkipReason = true, "no question set"
			return nil
		}
		stats.Err = err
		return fmt.Errorf("weekly_matching: resolve question set: %w", err)
	}
	stats.CycleSetID = string(cycleSetID)

	cmd := command.RunMatchingCycleCommand{
		WeekStart:     week.Start,
		WeekEnd:       week.End,
		CycleSetID:    cycleSetID,
		CorrelationID: uuid.NewString(),
	}

	run := func(ctx context.Context) error {
		result, err := j.runner.Handle(ctx, cmd)
		if j.observer != nil {
			j.observer.ObserveCycle(result, err)
		}
		if result != nil {
			stats.Matched = len(result.Matches)
			stats.Unmatched = len(result.Unmatched)
			stats.Conflicts = len(result.Conflicts)
			stats.Failures = len(result.Failures)
		}
		return err
	}

	if j.locker == nil {
		err = run(ctx)
	} else {
		err = j.locker.WithLock(ctx, j.lockResource(week), j.config.LockTTL, run)
	}

	switch {
	case errors.Is(err, shared.ErrLockNotAcquired):
		log.Info("cycle already running on another worker, skipping")
		stats.Skipped, stats.SkipReason = true, "lock held"
		if j.observer != nil {
			j.observer.LockSkipped(j.Name())
		}
		return nil
	case errors.Is(err, shared.ErrInsufficientPool):
		log.Warn("pool too small, no matches this week", "error", err)
		stats.Skipped, stats.SkipReason = true, "insufficient pool"
		return nil
	case err != nil:
		stats.Err = err
		return fmt.Errorf("weekly_matching: %w", err)
	}

	log.Info("weekly matching completed",
		"cycle_set_id", cycleSetID,
		"matched", stats.Matched,
		"unmatched", stats.Unmatched,
		"conflicts", stats.Conflicts,
	)

	return nil
}

// LastRunStats returns the stats of the last run, or nil.
func (j *WeeklyMatchingJob) LastRunStats() *WeeklyMatchingStats {
	return j.lastRunStats.Load()
}

func (j *WeeklyMatchingJob) lockResource(week timeutil.Week) string {
	return "weekly_matching:" + week.Key()
}
