package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/participant"
	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// QuestionSetRepository implements matching.QuestionSetReader using PostgreSQL.
type QuestionSetRepository struct {
	conn *Connection
}

// NewQuestionSetRepository creates a new QuestionSetRepository.
func NewQuestionSetRepository(conn *Connection) *QuestionSetRepository {
	return &QuestionSetRepository{
		conn: conn,
	}
}

// Exists reports whether a weekly question set with this id exists.
func (r *QuestionSetRepository) Exists(ctx context.Context, id participant.CycleSetID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM weekly_question_sets WHERE id::text = $1)`,
		string(id),
	).Scan(&exists)
	if err != nil {
		return false, classify("QuestionSetExists", err)
	}
	return exists, nil
}

// FindForWeek returns the question set lying inside the given week. The end
// bound tolerates one second of skew from clients that stored second precision.
func (r *QuestionSetRepository) FindForWeek(ctx context.Context, weekStart, weekEnd time.Time) (participant.CycleSetID, error) {
	var id string
	err := r.conn.QueryRow(ctx, `
		SELECT id FROM weekly_question_sets
		WHERE week_start >= $1 AND week_end <= $2
		ORDER BY week_start, created_at
		LIMIT 1
	`, weekStart, weekEnd.Add(time.Second)).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return "", fmt.Errorf("week %s: %w", weekStart.Format(time.DateOnly), shared.ErrQuestionSetNotFound)
		}
		return "", classify("FindQuestionSetForWeek", err)
	}
	return participant.CycleSetID(id), nil
}
