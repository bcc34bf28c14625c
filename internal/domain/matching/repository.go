package matching

import (
	"context"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// HistoryReader loads every pair ever matched, regardless of status.
type HistoryReader interface {
	ListHistoryPairs(ctx context.Context) ([]PairKey, error)
}

// MatchWriter persists new matches.
type MatchWriter interface {
	// Create stores the match and claims both participants' slots for its
	// week. It returns ErrParticipantAlreadyMatched if either slot is taken.
	Create(ctx context.Context, m *Match) error
}

// ExpiryStore drives the expiry sweep.
type ExpiryStore interface {
	// ListExpired returns active matches whose week ended before now.
	ListExpired(ctx context.Context, now time.Time) ([]*Match, error)

	// CompleteAndPurge deletes the match's messages and marks it completed in
	// one transaction, only if it is still active. completed is false (and
	// deleted is 0) when the match was already closed by someone else.
	CompleteAndPurge(ctx context.Context, matchID string, now time.Time) (deleted int, completed bool, err error)
}

// QuestionSetReader resolves weekly question sets.
type QuestionSetReader interface {
	Exists(ctx context.Context, id participant.CycleSetID) (bool, error)

	// FindForWeek returns the earliest set lying inside [weekStart, weekEnd],
	// allowing one second of slack on the end bound, or ErrQuestionSetNotFound.
	FindForWeek(ctx context.Context, weekStart, weekEnd time.Time) (participant.CycleSetID, error)
}

// WeekReader lists the matches of one week.
type WeekReader interface {
	ListByWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]*Match, error)
}
