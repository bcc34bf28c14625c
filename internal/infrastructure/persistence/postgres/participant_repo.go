package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// ParticipantRepository implements participant.PoolReader using PostgreSQL.
type ParticipantRepository struct {
	conn *Connection
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{
		conn: conn,
	}
}

// ListEligibleWithAnswers loads the weekly pool in (joined_at, id) order with
// the answers given for cycleSetID. Both reads share one read-only
// transaction so the pool and its answers come from the same snapshot.
func (r *ParticipantRepository) ListEligibleWithAnswers(ctx context.Context, cycleSetID participant.CycleSetID) ([]*participant.Participant, error) {
	var pool []*participant.Participant

	err := r.conn.WithTx(ctx, SnapshotTxOptions(), func(tx pgx.Tx) error {
		var err error
		pool, err = r.listEligible(ctx, tx)
		if err != nil {
			return err
		}
		return r.attachAnswers(ctx, tx, cycleSetID, pool)
	})
	if err != nil {
		return nil, classify("ListEligibleWithAnswers", err)
	}

	return pool, nil
}

// ListEligibleIDs returns the ids of all eligible participants.
func (r *ParticipantRepository) ListEligibleIDs(ctx context.Context) ([]participant.ID, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id FROM participants
		WHERE status = 'ACTIVE' AND role = 'USER'
		ORDER BY joined_at, id
	`)
	if err != nil {
		return nil, classify("ListEligibleIDs", err)
	}
	defer rows.Close()

	var ids []participant.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant id: %w", err)
		}
		ids = append(ids, participant.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListEligibleIDs", err)
	}
	return ids, nil
}

func (r *ParticipantRepository) listEligible(ctx context.Context, q Querier) ([]*participant.Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, gender, preference, latitude, longitude, status, role, joined_at
		FROM participants
		WHERE status = 'ACTIVE' AND role = 'USER'
		ORDER BY joined_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var pool []*participant.Participant
	for rows.Next() {
		var (
			id                 string
			gender, preference *string
			lat, lon           *float64
			status, role       string
			joinedAt           time.Time
		)
		if err := rows.Scan(&id, &gender, &preference, &lat, &lon, &status, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		p := &participant.Participant{
			ID:       participant.ID(id),
			Status:   participant.Status(status),
			Role:     participant.Role(role),
			JoinedAt: joinedAt,
		}
		if gender != nil {
			p.Gender = participant.Gender(*gender)
		}
		if preference != nil {
			p.Preference = participant.Preference(*preference)
		}
		if lat != nil && lon != nil {
			loc, err := participant.SomeLocation(*lat, *lon)
			if err == nil {
				p.Location = loc
			}
		}

		pool = append(pool, p)
	}

	return pool, rows.Err()
}

func (r *ParticipantRepository) attachAnswers(ctx context.Context, q Querier, cycleSetID participant.CycleSetID, pool []*participant.Participant) error {
	if len(pool) == 0 {
		return nil
	}

	byID := make(map[participant.ID]*participant.Participant, len(pool))
	for _, p := range pool {
		byID[p.ID] = p
	}

	rows, err := q.Query(ctx, `
		SELECT a.participant_id, a.question_id, a.value
		FROM question_answers a
		JOIN participants p ON p.id = a.participant_id
		WHERE a.weekly_set_id = $1 AND p.status = 'ACTIVE' AND p.role = 'USER'
		ORDER BY a.participant_id, a.question_id
	`, string(cycleSetID))
	if err != nil {
		return fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			participantID, questionID string
			raw                       []byte
		)
		if err := rows.Scan(&participantID, &questionID, &raw); err != nil {
			return fmt.Errorf("failed to scan answer: %w", err)
		}

		p, ok := byID[participant.ID(participantID)]
		if !ok {
			continue
		}
		p.Answers = append(p.Answers, participant.Answer{
			ParticipantID: p.ID,
			QuestionID:    participant.QuestionID(questionID),
			CycleSetID:    cycleSetID,
			Value:         participant.ParseAnswerValue(raw),
		})
	}

	return rows.Err()
}
