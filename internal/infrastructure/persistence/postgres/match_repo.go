package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/participant"
	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// errAlreadyClosed aborts a purge transaction when the match is no longer active.
var errAlreadyClosed = errors.New("match already closed")

// MatchRepository implements the matching store interfaces using PostgreSQL.
//
// Weekly uniqueness is enforced by match_slots: one row per participant per
// week_start, written in the same transaction as the match.
type MatchRepository struct {
	conn *Connection
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(conn *Connection) *MatchRepository {
	return &MatchRepository{
		conn: conn,
	}
}

const matchColumns = `id, participant_a, participant_b, week_start, week_end,
	compatibility, assigned_by, status, created_at, updated_at`

// Create inserts the match and claims both participants' weekly slots.
func (r *MatchRepository) Create(ctx context.Context, m *matching.Match) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO matches (`+matchColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			m.ID,
			string(m.ParticipantA),
			string(m.ParticipantB),
			m.WeekStart,
			m.WeekEnd,
			m.Compatibility,
			string(m.AssignedBy),
			string(m.Status),
			m.CreatedAt,
			m.UpdatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO match_slots (participant_id, week_start, match_id)
			VALUES ($1, $3, $4), ($2, $3, $4)
		`, string(m.ParticipantA), string(m.ParticipantB), m.WeekStart, m.ID)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("postgres", "CreateMatch", shared.ErrAlreadyExists,
				fmt.Sprintf("slot taken for %s or %s", m.ParticipantA, m.ParticipantB),
				shared.ErrParticipantAlreadyMatched)
		}
		return classify("CreateMatch", err)
	}

	return nil
}

// ListHistoryPairs returns every pair ever matched, in any status.
// Only the two id columns are read.
func (r *MatchRepository) ListHistoryPairs(ctx context.Context) ([]matching.PairKey, error) {
	rows, err := r.conn.Query(ctx, `SELECT participant_a, participant_b FROM matches`)
	if err != nil {
		return nil, classify("ListHistoryPairs", err)
	}
	defer rows.Close()

	var pairs []matching.PairKey
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan history pair: %w", err)
		}
		pairs = append(pairs, matching.NewPairKey(participant.ID(a), participant.ID(b)))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListHistoryPairs", err)
	}

	return pairs, nil
}

// ListExpired returns active matches whose week ended before now.
func (r *MatchRepository) ListExpired(ctx context.Context, now time.Time) ([]*matching.Match, error) {
	matches, err := r.queryMatches(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE status = 'ACTIVE' AND week_end < $1
		ORDER BY week_end, id
	`, now)
	if err != nil {
		return nil, classify("ListExpired", err)
	}
	return matches, nil
}

// CompleteAndPurge deletes the chat of an active match and completes it, in
// one transaction holding the match row lock. A match that is no longer
// active is left alone and reported as not completed.
func (r *MatchRepository) CompleteAndPurge(ctx context.Context, matchID string, now time.Time) (int, bool, error) {
	var deleted int64

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM matches WHERE id = $1 FOR UPDATE`, matchID,
		).Scan(&status)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrMatchNotFound
			}
			return err
		}
		if matching.Status(status) != matching.StatusActive {
			return errAlreadyClosed
		}

		tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE match_id = $1`, matchID)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()

		_, err = tx.Exec(ctx, `
			UPDATE matches SET status = 'COMPLETED', updated_at = $2
			WHERE id = $1 AND status = 'ACTIVE'
		`, matchID, now)
		return err
	})

	switch {
	case errors.Is(err, errAlreadyClosed):
		return 0, false, nil
	case errors.Is(err, shared.ErrMatchNotFound):
		return 0, false, err
	case err != nil:
		return 0, false, classify("CompleteAndPurge", err)
	}

	return int(deleted), true, nil
}

// ListByWeek returns the matches that fall inside the given week.
func (r *MatchRepository) ListByWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]*matching.Match, error) {
	matches, err := r.queryMatches(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE week_start >= $1 AND week_end <= $2
		ORDER BY compatibility DESC, created_at
	`, weekStart, weekEnd)
	if err != nil {
		return nil, classify("ListByWeek", err)
	}
	return matches, nil
}

func (r *MatchRepository) queryMatches(ctx context.Context, sql string, args ...interface{}) ([]*matching.Match, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*matching.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

func scanMatch(row pgx.Row) (*matching.Match, error) {
	var (
		m                  matching.Match
		a, b               string
		assignedBy, status string
	)
	err := row.Scan(
		&m.ID,
		&a,
		&b,
		&m.WeekStart,
		&m.WeekEnd,
		&m.Compatibility,
		&assignedBy,
		&status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}

	m.ParticipantA = participant.ID(a)
	m.ParticipantB = participant.ID(b)
	m.AssignedBy = matching.AssignedBy(assignedBy)
	m.Status = matching.Status(status)

	return &m, nil
}
