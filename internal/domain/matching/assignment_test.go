package matching

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

func ids(ps ...string) []*participant.Participant {
	out := make([]*participant.Participant, 0, len(ps))
	for _, id := range ps {
		out = append(out, veteran(id))
	}
	return out
}

func TestAssign_FiveParticipants(t *testing.T) {
	pool := ids("p1", "p2", "p3", "p4", "p5")
	pairs := []CandidatePair{
		{A: "p4", B: "p5", Score: 0.6},
		{A: "p1", B: "p3", Score: 0.8},
		{A: "p1", B: "p2", Score: 0.9},
		{A: "p2", B: "p5", Score: 0.5},
		{A: "p3", B: "p4", Score: 0.7},
	}

	got := Assign(pairs, pool)

	require.Len(t, got.Pairs, 2)
	assert.Equal(t, CandidatePair{A: "p1", B: "p2", Score: 0.9}, got.Pairs[0])
	assert.Equal(t, CandidatePair{A: "p3", B: "p4", Score: 0.7}, got.Pairs[1])
	assert.Equal(t, []participant.ID{"p5"}, got.Unmatched)
}

func TestAssign_NaNScoresSortLast(t *testing.T) {
	pool := ids("A", "B", "C", "D")
	pairs := []CandidatePair{
		{A: "A", B: "B", Score: 0.1},
		{A: "C", B: "D", Score: math.NaN()},
		{A: "A", B: "C", Score: 0.9},
	}

	got := Assign(pairs, pool)

	require.Len(t, got.Pairs, 1)
	assert.Equal(t, CandidatePair{A: "A", B: "C", Score: 0.9}, got.Pairs[0])
	assert.Equal(t, []participant.ID{"B", "D"}, got.Unmatched)
}

func TestAssign_TiesKeepGenerationOrder(t *testing.T) {
	pool := ids("a", "b", "c")
	pairs := []CandidatePair{
		{A: "a", B: "b", Score: 0.5},
		{A: "a", B: "c", Score: 0.5},
		{A: "b", B: "c", Score: 0.5},
	}

	got := Assign(pairs, pool)

	require.Len(t, got.Pairs, 1)
	assert.Equal(t, participant.ID("a"), got.Pairs[0].A)
	assert.Equal(t, participant.ID("b"), got.Pairs[0].B)
	assert.Equal(t, []participant.ID{"c"}, got.Unmatched)
}

func TestAssign_DoesNotMutateInput(t *testing.T) {
	pairs := []CandidatePair{
		{A: "a", B: "b", Score: 0.1},
		{A: "c", B: "d", Score: 0.9},
	}
	Assign(pairs, ids("a", "b", "c", "d"))

	assert.Equal(t, participant.ID("a"), pairs[0].A)
}

func TestAssign_EmptyCandidates(t *testing.T) {
	got := Assign(nil, ids("a", "b"))

	assert.Empty(t, got.Pairs)
	assert.Equal(t, []participant.ID{"a", "b"}, got.Unmatched)
}

func TestAssign_Injective(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		pool := randomPool(50, seed)
		pairs, err := newTestGenerator(4).Generate(context.Background(), pool, nil)
		require.NoError(t, err)

		got := Assign(pairs, pool)

		seen := make(map[participant.ID]int)
		for _, p := range got.Pairs {
			seen[p.A]++
			seen[p.B]++
		}
		for _, id := range got.Unmatched {
			seen[id]++
		}
		for id, n := range seen {
			assert.Equal(t, 1, n, "participant %s appears %d times", id, n)
		}
		assert.Len(t, seen, len(pool))
	}
}

func TestAssign_Maximal(t *testing.T) {
	pool := randomPool(30, 11)
	pairs, err := newTestGenerator(1).Generate(context.Background(), pool, nil)
	require.NoError(t, err)

	got := Assign(pairs, pool)

	free := make(map[participant.ID]bool)
	for _, id := range got.Unmatched {
		free[id] = true
	}
	// No admissible pair may have both sides left unmatched.
	for _, p := range pairs {
		assert.False(t, free[p.A] && free[p.B], "%s-%s both unmatched", p.A, p.B)
	}
}
