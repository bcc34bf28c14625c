package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP EXPIRED CHATS COMMAND
// Closes matches whose week has ended and purges their chat messages.
// ══════════════════════════════════════════════════════════════════════════════

// SweepExpiredChatsCommand contains the sweep reference time.
type SweepExpiredChatsCommand struct {
	// Now is the reference time. Zero means the handler clock.
	Now time.Time
}

// SweepFailure is a match the sweep could not close.
type SweepFailure struct {
	MatchID string
	Err     error
}

// SweepResult reports what a sweep did.
type SweepResult struct {
	Expired          int
	MatchesCompleted int
	MessagesDeleted  int
	Failures         []SweepFailure
	Duration         time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SweepExpiredChatsHandler handles the SweepExpiredChatsCommand.
type SweepExpiredChatsHandler struct {
	store     matching.ExpiryStore
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	now       func() time.Time
	logger    *slog.Logger
}

// NewSweepExpiredChatsHandler creates a new SweepExpiredChatsHandler.
func NewSweepExpiredChatsHandler(store matching.ExpiryStore, publisher shared.EventPublisher, logger *slog.Logger) *SweepExpiredChatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &SweepExpiredChatsHandler{
		store:     store,
		publisher: publisher,
		retrier:   storeRetrier(logger, "sweep_expired_chats"),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With("handler", "sweep_expired_chats"),
	}
}

// WithClock replaces the handler clock.
func (h *SweepExpiredChatsHandler) WithClock(now func() time.Time) *SweepExpiredChatsHandler {
	h.now = now
	return h
}

// WithRetrier replaces the store retrier.
func (h *SweepExpiredChatsHandler) WithRetrier(r *retry.Retrier) *SweepExpiredChatsHandler {
	h.retrier = r
	return h
}

// Handle closes every expired match. A match closed concurrently by another
// sweep is not counted. Per-match failures do not stop the sweep; they are
// reported in the result and joined into the returned error.
func (h *SweepExpiredChatsHandler) Handle(ctx context.Context, cmd SweepExpiredChatsCommand) (*SweepResult, error) {
	start := h.now()
	now := cmd.Now
	if now.IsZero() {
		now = start
	}

	expired, err := retry.DoWith(ctx, h.retrier, func(ctx context.Context) ([]*matching.Match, error) {
		return h.store.ListExpired(ctx, now)
	})
	if err != nil {
		return nil, fmt.Errorf("sweep_expired_chats: list expired: %w", err)
	}

	result := &SweepResult{Expired: len(expired)}

	for _, m := range expired {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, SweepFailure{MatchID: m.ID, Err: err})
			continue
		}

		var (
			deleted   int
			completed bool
		)
		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			var opErr error
			deleted, completed, opErr = h.store.CompleteAndPurge(ctx, m.ID, now)
			return opErr
		})
		if err != nil {
			h.logger.Error("failed to close expired match", "match_id", m.ID, "error", err)
			result.Failures = append(result.Failures, SweepFailure{MatchID: m.ID, Err: err})
			continue
		}
		if !completed {
			h.logger.Debug("match already closed", "match_id", m.ID)
			continue
		}

		result.MatchesCompleted++
		result.MessagesDeleted += deleted
		h.publish(shared.NewMatchCompletedEvent(m.ID, deleted))
	}

	result.Duration = h.now().Sub(start)

	if result.MatchesCompleted > 0 {
		h.publish(shared.NewChatsSweptEvent(result.MatchesCompleted, result.MessagesDeleted))
	}

	h.logger.Info("expired chats swept",
		"expired", result.Expired,
		"completed", result.MatchesCompleted,
		"messages_deleted", result.MessagesDeleted,
		"failures", len(result.Failures),
	)

	if len(result.Failures) > 0 {
		errs := make([]error, 0, len(result.Failures))
		for _, f := range result.Failures {
			errs = append(errs, fmt.Errorf("match %s: %w", f.MatchID, f.Err))
		}
		return result, fmt.Errorf("sweep_expired_chats: %d of %d matches not closed: %w",
			len(result.Failures), len(expired), errors.Join(errs...))
	}

	return result, nil
}

func (h *SweepExpiredChatsHandler) publish(event shared.Event) {
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
