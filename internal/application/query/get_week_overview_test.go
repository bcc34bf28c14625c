package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/participant"
)

type stubWeek struct {
	matches []*matching.Match
}

func (s stubWeek) ListByWeek(context.Context, time.Time, time.Time) ([]*matching.Match, error) {
	return s.matches, nil
}

type stubEligible []participant.ID

func (s stubEligible) ListEligibleIDs(context.Context) ([]participant.ID, error) {
	return s, nil
}

func TestGetWeekOverview(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7).Add(-time.Millisecond)

	low, err := matching.NewAlgorithmMatch(matching.CandidatePair{A: "a", B: "b", Score: 0.4}, start, end, start)
	require.NoError(t, err)
	high, err := matching.NewAlgorithmMatch(matching.CandidatePair{A: "c", B: "d", Score: 0.9}, start, end, start)
	require.NoError(t, err)
	admin, err := matching.NewAlgorithmMatch(matching.CandidatePair{A: "e", B: "f"}, start, end, start)
	require.NoError(t, err)
	admin.AssignedBy = matching.AssignedByAdmin
	admin.Status = matching.StatusReported

	h := NewGetWeekOverviewHandler(
		stubWeek{matches: []*matching.Match{low, admin, high}},
		stubEligible{"a", "b", "c", "d", "e", "f", "g", "h"},
	)

	got, err := h.Handle(context.Background(), GetWeekOverviewQuery{WeekStart: start, WeekEnd: end})
	require.NoError(t, err)

	require.Len(t, got.Matches, 3)
	assert.Equal(t, high.ID, got.Matches[0].ID)
	assert.Equal(t, low.ID, got.Matches[1].ID)
	assert.Equal(t, admin.ID, got.Matches[2].ID)
	assert.Equal(t, []string{"g", "h"}, got.Unmatched)

	assert.Equal(t, 3, got.TotalMatches)
	assert.Equal(t, 2, got.AlgorithmMatches)
	assert.Equal(t, 1, got.AdminMatches)
	assert.Equal(t, 2, got.ActiveMatches)
}

func TestGetWeekOverview_InvalidWeek(t *testing.T) {
	h := NewGetWeekOverviewHandler(stubWeek{}, stubEligible{})
	now := time.Now()

	_, err := h.Handle(context.Background(), GetWeekOverviewQuery{WeekStart: now, WeekEnd: now})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), GetWeekOverviewQuery{})
	assert.Error(t, err)
}
