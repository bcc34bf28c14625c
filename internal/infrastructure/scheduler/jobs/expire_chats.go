package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blackout-hub/blackout/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE CHATS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Sweeper closes expired matches.
type Sweeper interface {
	Handle(ctx context.Context, cmd command.SweepExpiredChatsCommand) (*command.SweepResult, error)
}

// SweepObserver records sweep outcomes.
type SweepObserver interface {
	ObserveSweep(result *command.SweepResult, err error)
}

// ExpireChatsJob completes matches whose week has ended and purges their chats.
// The sweep is idempotent, so it runs unguarded on every replica.
type ExpireChatsJob struct {
	sweeper  Sweeper
	observer SweepObserver
	logger   *slog.Logger
	now      func() time.Time

	lastRunStats atomic.Pointer[command.SweepResult]
}

// NewExpireChatsJob creates a new expire chats job. observer may be nil.
func NewExpireChatsJob(sweeper Sweeper, observer SweepObserver, logger *slog.Logger) *ExpireChatsJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExpireChatsJob{
		sweeper:  sweeper,
		observer: observer,
		logger:   logger.With("job", "expire_chats"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the job name.
func (j *ExpireChatsJob) Name() string {
	return "expire_chats"
}

// Description returns a human-readable description.
func (j *ExpireChatsJob) Description() string {
	return "Completes expired matches and deletes their chat messages"
}

// Run executes one sweep.
func (j *ExpireChatsJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Handle(ctx, command.SweepExpiredChatsCommand{Now: j.now()})
	if j.observer != nil {
		j.observer.ObserveSweep(result, err)
	}
	if result != nil {
		j.lastRunStats.Store(result)
	}
	if err != nil {
		return fmt.Errorf("expire_chats: %w", err)
	}

	if result.MatchesCompleted > 0 {
		j.logger.Info("expired chats closed",
			"matches_completed", result.MatchesCompleted,
			"messages_deleted", result.MessagesDeleted,
		)
	}

	return nil
}

// LastRunStats returns the result of the last sweep that produced one, or nil.
func (j *ExpireChatsJob) LastRunStats() *command.SweepResult {
	return j.lastRunStats.Load()
}
