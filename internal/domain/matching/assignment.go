package matching

import (
	"math"
	"sort"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// Assignment is the outcome of greedy assignment for one cycle.
type Assignment struct {
	// Pairs are the committed pairs in commit order (best score first).
	Pairs []CandidatePair

	// Unmatched lists pool members left without a partner, in pool order.
	Unmatched []participant.ID
}

// Assign selects a set of disjoint pairs greedily: candidates are visited by
// descending score and a pair is committed when neither side is taken yet.
// Equal scores keep their generation order; NaN scores sort last.
//
// The result is maximal, not maximum-weight.
func Assign(pairs []CandidatePair, pool []*participant.Participant) Assignment {
	sorted := make([]CandidatePair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Score, sorted[j].Score
		if math.IsNaN(sj) {
			return !math.IsNaN(si)
		}
		return si > sj
	})

	taken := make(map[participant.ID]struct{}, len(pool))
	var committed []CandidatePair

	for _, p := range sorted {
		if p.A == p.B {
			continue
		}
		if _, ok := taken[p.A]; ok {
			continue
		}
		if _, ok := taken[p.B]; ok {
			continue
		}
		taken[p.A] = struct{}{}
		taken[p.B] = struct{}{}
		committed = append(committed, p)
	}

	return Assignment{
		Pairs:     committed,
		Unmatched: unmatched(pool, taken),
	}
}

// unmatched returns pool ids absent from taken, in pool order, once each.
func unmatched(pool []*participant.Participant, taken map[participant.ID]struct{}) []participant.ID {
	seen := make(map[participant.ID]struct{}, len(pool))
	var out []participant.ID
	for _, p := range pool {
		if p == nil {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		if _, ok := taken[p.ID]; !ok {
			out = append(out, p.ID)
		}
	}
	return out
}
