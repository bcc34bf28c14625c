package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blackout-hub/blackout/internal/application/query"
	"github.com/blackout-hub/blackout/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports 503 when a required dependency is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady reports 503 when any dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// handleListJobs handles GET /v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Jobs.ListJobs())
}

// handleCurrentWeek handles GET /v1/weeks/current
func (s *Server) handleCurrentWeek(w http.ResponseWriter, r *http.Request) {
	s.writeWeekOverview(w, r, timeutil.WeekOf(time.Now(), s.deps.Location))
}

// handleWeek handles GET /v1/weeks/{date}. Any day of the week selects it.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	loc := s.deps.Location
	if loc == nil {
		loc = timeutil.DefaultLocation
	}

	day, err := time.ParseInLocation(time.DateOnly, chi.URLParam(r, "date"), loc)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	s.writeWeekOverview(w, r, timeutil.WeekOf(day, loc))
}

func (s *Server) writeWeekOverview(w http.ResponseWriter, r *http.Request, week timeutil.Week) {
	if s.deps.WeekOverview == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Week overview not configured")
		return
	}

	overview, err := s.deps.WeekOverview.Handle(r.Context(), query.GetWeekOverviewQuery{
		WeekStart: week.Start,
		WeekEnd:   week.End,
	})
	if err != nil {
		s.logger.Error("failed to get week overview", "week", week.String(), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get week overview")
		return
	}

	writeJSON(w, http.StatusOK, overview)
}
