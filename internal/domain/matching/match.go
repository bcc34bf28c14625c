// Package matching contains the weekly pairing domain: persisted matches,
// compatibility scoring, preference filtering, score adjustments, pair
// generation and greedy assignment.
package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/blackout-hub/blackout/internal/domain/participant"
	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AssignedBy records who created a match.
type AssignedBy string

const (
	AssignedByAlgorithm AssignedBy = "ALGORITHM"
	AssignedByAdmin     AssignedBy = "ADMIN"
)

// IsValid reports whether the value is known.
func (a AssignedBy) IsValid() bool {
	return a == AssignedByAlgorithm || a == AssignedByAdmin
}

// Status is the lifecycle status of a match.
//
//	ACTIVE ──(week ended, sweep)──► COMPLETED
//	ACTIVE ──(moderation)─────────► REPORTED
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusReported  Status = "REPORTED"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusReported:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PAIR KEY / HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// PairKey is the canonical unordered key of two participants.
// Low is always the lexicographically smaller id.
type PairKey struct {
	Low  participant.ID
	High participant.ID
}

// NewPairKey builds the key for a and b in either order.
func NewPairKey(a, b participant.ID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// HistorySet holds every pair that has ever been matched.
type HistorySet map[PairKey]struct{}

// NewHistorySet builds a set from stored pairs.
func NewHistorySet(keys []PairKey) HistorySet {
	h := make(HistorySet, len(keys))
	for _, k := range keys {
		h[NewPairKey(k.Low, k.High)] = struct{}{}
	}
	return h
}

// Add records a pair.
func (h HistorySet) Add(a, b participant.ID) {
	h[NewPairKey(a, b)] = struct{}{}
}

// Contains reports whether a and b were ever matched, in either order.
// A nil set contains nothing.
func (h HistorySet) Contains(a, b participant.ID) bool {
	if h == nil {
		return false
	}
	_, ok := h[NewPairKey(a, b)]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE PAIR
// ══════════════════════════════════════════════════════════════════════════════

// CandidatePair is a scored, unordered pairing considered during one cycle.
// It is never persisted.
type CandidatePair struct {
	A     participant.ID
	B     participant.ID
	Score float64
}

// Key returns the canonical key of the pair.
func (p CandidatePair) Key() PairKey {
	return NewPairKey(p.A, p.B)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH
// ══════════════════════════════════════════════════════════════════════════════

// Match pairs two participants for one week. Historical matches are kept
// forever; only their chat messages are purged once the week is over.
type Match struct {
	ID            string
	ParticipantA  participant.ID
	ParticipantB  participant.ID
	WeekStart     time.Time
	WeekEnd       time.Time
	Compatibility float64
	AssignedBy    AssignedBy
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAlgorithmMatch creates an active match produced by a matching cycle.
func NewAlgorithmMatch(pair CandidatePair, weekStart, weekEnd, now time.Time) (*Match, error) {
	return newMatch(pair.A, pair.B, pair.Score, AssignedByAlgorithm, weekStart, weekEnd, now)
}

func newMatch(a, b participant.ID, score float64, by AssignedBy, weekStart, weekEnd, now time.Time) (*Match, error) {
	if !a.IsValid() || !b.IsValid() {
		return nil, shared.ErrInvalidParticipant
	}
	if a == b {
		return nil, shared.ErrSelfMatch
	}
	if !weekEnd.After(weekStart) {
		return nil, shared.WrapError("matching", "NewMatch", shared.ErrInvalidInput,
			"week end must be after week start", shared.ErrInvalidCycle)
	}

	return &Match{
		ID:            uuid.NewString(),
		ParticipantA:  a,
		ParticipantB:  b,
		WeekStart:     weekStart,
		WeekEnd:       weekEnd,
		Compatibility: score,
		AssignedBy:    by,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Complete closes an active match. Any other source state is rejected.
func (m *Match) Complete(now time.Time) error {
	if m.Status != StatusActive {
		return shared.ErrInvalidMatchTransition
	}
	m.Status = StatusCompleted
	m.UpdatedAt = now
	return nil
}

// IsExpired reports whether the match is still active after its week ended.
func (m *Match) IsExpired(now time.Time) bool {
	return m.Status == StatusActive && m.WeekEnd.Before(now)
}
