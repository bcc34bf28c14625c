// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET WEEK OVERVIEW QUERY
// Matches of one week, best compatibility first, plus every eligible
// participant who has no match in that week.
// ══════════════════════════════════════════════════════════════════════════════

// EligibleReader lists the ids of every eligible participant.
type EligibleReader interface {
	ListEligibleIDs(ctx context.Context) ([]participant.ID, error)
}

// GetWeekOverviewQuery selects the week.
type GetWeekOverviewQuery struct {
	WeekStart time.Time
	WeekEnd   time.Time
}

// Validate validates the query.
func (q GetWeekOverviewQuery) Validate() error {
	if q.WeekStart.IsZero() || q.WeekEnd.IsZero() {
		return errors.New("week bounds are required")
	}
	if !q.WeekEnd.After(q.WeekStart) {
		return errors.New("week_end must be after week_start")
	}
	return nil
}

// MatchDTO is one match of the week.
type MatchDTO struct {
	ID            string    `json:"id"`
	ParticipantA  string    `json:"participant_a"`
	ParticipantB  string    `json:"participant_b"`
	Compatibility float64   `json:"compatibility"`
	AssignedBy    string    `json:"assigned_by"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// WeekOverviewDTO is the week overview.
type WeekOverviewDTO struct {
	WeekStart time.Time  `json:"week_start"`
	WeekEnd   time.Time  `json:"week_end"`
	Matches   []MatchDTO `json:"matches"`
	Unmatched []string   `json:"unmatched"`

	// Stats
	TotalMatches     int `json:"total_matches"`
	AlgorithmMatches int `json:"algorithm_matches"`
	AdminMatches     int `json:"admin_matches"`
	ActiveMatches    int `json:"active_matches"`
}

// GetWeekOverviewHandler handles GetWeekOverviewQuery.
type GetWeekOverviewHandler struct {
	matches  matching.WeekReader
	eligible EligibleReader
}

// NewGetWeekOverviewHandler creates a new GetWeekOverviewHandler.
func NewGetWeekOverviewHandler(matches matching.WeekReader, eligible EligibleReader) *GetWeekOverviewHandler {
	return &GetWeekOverviewHandler{
		matches:  matches,
		eligible: eligible,
	}
}

// Handle executes the query.
func (h *GetWeekOverviewHandler) Handle(ctx context.Context, q GetWeekOverviewQuery) (*WeekOverviewDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_week_overview: %w", err)
	}

	matches, err := h.matches.ListByWeek(ctx, q.WeekStart, q.WeekEnd)
	if err != nil {
		return nil, fmt.Errorf("get_week_overview: list matches: %w", err)
	}

	ids, err := h.eligible.ListEligibleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_week_overview: list eligible: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Compatibility > matches[j].Compatibility
	})

	dto := &WeekOverviewDTO{
		WeekStart: q.WeekStart,
		WeekEnd:   q.WeekEnd,
		Matches:   make([]MatchDTO, 0, len(matches)),
		Unmatched: make([]string, 0),
	}

	inMatch := make(map[participant.ID]struct{}, len(matches)*2)
	for _, m := range matches {
		inMatch[m.ParticipantA] = struct{}{}
		inMatch[m.ParticipantB] = struct{}{}

		dto.Matches = append(dto.Matches, MatchDTO{
			ID:            m.ID,
			ParticipantA:  m.ParticipantA.String(),
			ParticipantB:  m.ParticipantB.String(),
			Compatibility: m.Compatibility,
			AssignedBy:    string(m.AssignedBy),
			Status:        string(m.Status),
			CreatedAt:     m.CreatedAt,
		})

		switch m.AssignedBy {
		case matching.AssignedByAlgorithm:
			dto.AlgorithmMatches++
		case matching.AssignedByAdmin:
			dto.AdminMatches++
		}
		if m.Status == matching.StatusActive {
			dto.ActiveMatches++
		}
	}
	dto.TotalMatches = len(dto.Matches)

	for _, id := range ids {
		if _, ok := inMatch[id]; !ok {
			dto.Unmatched = append(dto.Unmatched, id.String())
		}
	}

	return dto, nil
}
