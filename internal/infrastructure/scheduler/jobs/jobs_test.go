package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/application/command"
	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/participant"
	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/pkg/timeutil"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRunner struct {
	cmds   []command.RunMatchingCycleCommand
	result *command.RunMatchingCycleResult
	err    error
}

func (r *fakeRunner) Handle(_ context.Context, cmd command.RunMatchingCycleCommand) (*command.RunMatchingCycleResult, error) {
	r.cmds = append(r.cmds, cmd)
	return r.result, r.err
}

type fakeQuestionSets struct {
	id  participant.CycleSetID
	err error

	gotStart, gotEnd time.Time
}

func (q *fakeQuestionSets) Exists(context.Context, participant.CycleSetID) (bool, error) {
	return q.err == nil, q.err
}

func (q *fakeQuestionSets) FindForWeek(_ context.Context, start, end time.Time) (participant.CycleSetID, error) {
	q.gotStart, q.gotEnd = start, end
	return q.id, q.err
}

type fakeLocker struct {
	held      bool
	resources []string
}

func (l *fakeLocker) WithLock(ctx context.Context, resource string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.resources = append(l.resources, resource)
	if l.held {
		return fmt.Errorf("lock %s: %w", resource, shared.ErrLockNotAcquired)
	}
	return fn(ctx)
}

type fakeObserver struct {
	cycles    int
	cycleErrs []error
	lockSkips []string

	sweeps    int
	sweepErrs []error
}

func (o *fakeObserver) ObserveCycle(_ *command.RunMatchingCycleResult, err error) {
	o.cycles++
	o.cycleErrs = append(o.cycleErrs, err)
}

func (o *fakeObserver) LockSkipped(job string) {
	o.lockSkips = append(o.lockSkips, job)
}

func (o *fakeObserver) ObserveSweep(_ *command.SweepResult, err error) {
	o.sweeps++
	o.sweepErrs = append(o.sweepErrs, err)
}

type fakeSweeper struct {
	cmds   []command.SweepExpiredChatsCommand
	result *command.SweepResult
	err    error
}

func (s *fakeSweeper) Handle(_ context.Context, cmd command.SweepExpiredChatsCommand) (*command.SweepResult, error) {
	s.cmds = append(s.cmds, cmd)
	return s.result, s.err
}

// Monday 2026-10-12 is the start of ISO week 42.
var wednesday = time.Date(2026, 10, 14, 9, 30, 0, 0, timeutil.DefaultLocation)

func newWeeklyJob(runner *fakeRunner, qs *fakeQuestionSets, locker Locker, obs CycleObserver) *WeeklyMatchingJob {
	job := NewWeeklyMatchingJob(runner, qs, locker, obs, nil, DefaultWeeklyMatchingConfig())
	job.now = func() time.Time { return wednesday }
	return job
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY MATCHING
// ══════════════════════════════════════════════════════════════════════════════

func TestWeeklyMatchingJob_Run(t *testing.T) {
	runner := &fakeRunner{result: &command.RunMatchingCycleResult{
		Matches:   []*matching.Match{{ID: "m1"}, {ID: "m2"}},
		Unmatched: []participant.ID{"p5"},
	}}
	qs := &fakeQuestionSets{id: "set-42"}
	locker := &fakeLocker{}
	obs := &fakeObserver{}

	job := newWeeklyJob(runner, qs, locker, obs)
	require.NoError(t, job.Run(context.Background()))

	week := timeutil.WeekOf(wednesday, timeutil.DefaultLocation)
	assert.True(t, qs.gotStart.Equal(week.Start))
	assert.True(t, qs.gotEnd.Equal(week.End))

	require.Len(t, runner.cmds, 1)
	cmd := runner.cmds[0]
	assert.Equal(t, participant.CycleSetID("set-42"), cmd.CycleSetID)
	assert.True(t, cmd.WeekStart.Equal(week.Start))
	assert.True(t, cmd.WeekEnd.Equal(week.End))
	assert.NotEmpty(t, cmd.CorrelationID)

	assert.Equal(t, []string{"weekly_matching:2026-W42"}, locker.resources)
	assert.Equal(t, 1, obs.cycles)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.False(t, stats.Skipped)
	assert.Equal(t, "set-42", stats.CycleSetID)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 1, stats.Unmatched)
	assert.NoError(t, stats.Err)
}

func TestWeeklyMatchingJob_Skips(t *testing.T) {
	t.Run("no question set", func(t *testing.T) {
		runner := &fakeRunner{}
		qs := &fakeQuestionSets{err: fmt.Errorf("week: %w", shared.ErrQuestionSetNotFound)}

		job := newWeeklyJob(runner, qs, &fakeLocker{}, nil)
		require.NoError(t, job.Run(context.Background()))

		assert.Empty(t, runner.cmds)
		assert.True(t, job.LastRunStats().Skipped)
		assert.Equal(t, "no question set", job.LastRunStats().SkipReason)
	})

	t.Run("lock held elsewhere", func(t *testing.T) {
		runner := &fakeRunner{}
		obs := &fakeObserver{}

		job := newWeeklyJob(runner, &fakeQuestionSets{id: "set"}, &fakeLocker{held: true}, obs)
		require.NoError(t, job.Run(context.Background()))

		assert.Empty(t, runner.cmds)
		assert.Equal(t, []string{"weekly_matching"}, obs.lockSkips)
		assert.Zero(t, obs.cycles)
		assert.Equal(t, "lock held", job.LastRunStats().SkipReason)
	})

	t.Run("insufficient pool", func(t *testing.T) {
		runner := &fakeRunner{err: fmt.Errorf("run_matching_cycle: 1 eligible, need 2: %w", shared.ErrInsufficientPool)}
		obs := &fakeObserver{}

		job := newWeeklyJob(runner, &fakeQuestionSets{id: "set"}, nil, obs)
		require.NoError(t, job.Run(context.Background()))

		assert.Len(t, runner.cmds, 1)
		assert.Equal(t, 1, obs.cycles)
		assert.Equal(t, "insufficient pool", job.LastRunStats().SkipReason)
	})
}

func TestWeeklyMatchingJob_Errors(t *testing.T) {
	t.Run("question set lookup fails", func(t *testing.T) {
		dbErr := errors.New("connection refused")
		runner := &fakeRunner{}

		job := newWeeklyJob(runner, &fakeQuestionSets{err: dbErr}, nil, nil)
		err := job.Run(context.Background())

		require.ErrorIs(t, err, dbErr)
		assert.Empty(t, runner.cmds)
		assert.ErrorIs(t, job.LastRunStats().Err, dbErr)
	})

	t.Run("partial cycle", func(t *testing.T) {
		runner := &fakeRunner{
			result: &command.RunMatchingCycleResult{
				Matches:  []*matching.Match{{ID: "m1"}},
				Failures: []command.PairFailure{{Err: errors.New("write failed")}},
			},
			err: fmt.Errorf("run_matching_cycle: %w", shared.ErrCycleIncomplete),
		}

		job := newWeeklyJob(runner, &fakeQuestionSets{id: "set"}, &fakeLocker{}, nil)
		err := job.Run(context.Background())

		require.ErrorIs(t, err, shared.ErrCycleIncomplete)
		assert.Contains(t, err.Error(), "weekly_matching")

		stats := job.LastRunStats()
		assert.Equal(t, 1, stats.Matched)
		assert.Equal(t, 1, stats.Failures)
		assert.False(t, stats.Skipped)
	})
}

func TestWeeklyMatchingJob_Defaults(t *testing.T) {
	job := NewWeeklyMatchingJob(&fakeRunner{}, &fakeQuestionSets{}, nil, nil, nil, WeeklyMatchingConfig{})

	assert.Equal(t, "weekly_matching", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Equal(t, timeutil.DefaultLocation, job.config.Location)
	assert.Equal(t, 30*time.Minute, job.config.LockTTL)
	assert.Nil(t, job.LastRunStats())
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE CHATS
// ══════════════════════════════════════════════════════════════════════════════

func TestExpireChatsJob_Run(t *testing.T) {
	sweeper := &fakeSweeper{result: &command.SweepResult{Expired: 2, MatchesCompleted: 2, MessagesDeleted: 7}}
	obs := &fakeObserver{}

	job := NewExpireChatsJob(sweeper, obs, nil)
	job.now = func() time.Time { return wednesday }

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, sweeper.cmds, 1)
	assert.True(t, sweeper.cmds[0].Now.Equal(wednesday))
	assert.Equal(t, 1, obs.sweeps)
	assert.Equal(t, 7, job.LastRunStats().MessagesDeleted)
	assert.Equal(t, "expire_chats", job.Name())
}

func TestExpireChatsJob_Errors(t *testing.T) {
	t.Run("partial sweep keeps stats", func(t *testing.T) {
		failure := errors.New("deadlock")
		sweeper := &fakeSweeper{
			result: &command.SweepResult{Expired: 2, MatchesCompleted: 1, Failures: []command.SweepFailure{{MatchID: "m2", Err: failure}}},
			err:    fmt.Errorf("sweep_expired_chats: %w", failure),
		}
		obs := &fakeObserver{}

		job := NewExpireChatsJob(sweeper, obs, nil)
		err := job.Run(context.Background())

		require.ErrorIs(t, err, failure)
		assert.Contains(t, err.Error(), "expire_chats")
		assert.Equal(t, 1, job.LastRunStats().MatchesCompleted)
		require.Len(t, obs.sweepErrs, 1)
		assert.ErrorIs(t, obs.sweepErrs[0], failure)
	})

	t.Run("listing fails", func(t *testing.T) {
		sweeper := &fakeSweeper{err: errors.New("timeout")}

		job := NewExpireChatsJob(sweeper, nil, nil)

		require.Error(t, job.Run(context.Background()))
		assert.Nil(t, job.LastRunStats())
	})
}
