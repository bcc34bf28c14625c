package matching

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// GeneratorConfig configures one run of the pair generator.
type GeneratorConfig struct {
	// CycleSetID selects which answers are compared.
	CycleSetID participant.CycleSetID

	// Now is the cycle run time.
	Now time.Time

	// Workers is the number of goroutines scoring rows. Values below 2
	// score sequentially.
	Workers int

	Adjustment AdjustmentConfig
}

// Generator enumerates and scores every admissible pair of a pool.
type Generator struct {
	config   GeneratorConfig
	adjuster *Adjuster
}

// NewGenerator creates a generator for one cycle.
func NewGenerator(config GeneratorConfig) *Generator {
	return &Generator{
		config:   config,
		adjuster: NewAdjuster(config.Adjustment),
	}
}

// Generate returns a scored candidate for every unordered pair (i, j), i < j,
// of the pool that passes the preference filter. Pairs appear in row order
// of the pool, which is also the tie-break order used by Assign.
//
// Duplicate ids in the pool are dropped after their first occurrence.
func (g *Generator) Generate(ctx context.Context, pool []*participant.Participant, history HistorySet) ([]CandidatePair, error) {
	pool = dedupe(pool)
	if len(pool) < 2 {
		return nil, nil
	}

	rows := make([][]CandidatePair, len(pool)-1)

	if g.config.Workers < 2 {
		for i := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rows[i] = g.scoreRow(pool, i, history)
		}
		return flatten(rows), nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.config.Workers)
	for i := range rows {
		i := i
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = g.scoreRow(pool, i, history)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return flatten(rows), nil
}

// scoreRow scores pool[i] against every later participant.
func (g *Generator) scoreRow(pool []*participant.Participant, i int, history HistorySet) []CandidatePair {
	a := pool[i]
	out := make([]CandidatePair, 0, len(pool)-i-1)

	for j := i + 1; j < len(pool); j++ {
		b := pool[j]
		if !PreferencesCompatible(a, b) {
			continue
		}

		raw := Score(a.Answers, b.Answers, g.config.CycleSetID)
		score := g.adjuster.Adjust(raw, PairContext{
			A:       a,
			B:       b,
			History: history,
			Now:     g.config.Now,
		})

		out = append(out, CandidatePair{A: a.ID, B: b.ID, Score: score})
	}
	return out
}

func dedupe(pool []*participant.Participant) []*participant.Participant {
	seen := make(map[participant.ID]struct{}, len(pool))
	out := make([]*participant.Participant, 0, len(pool))
	for _, p := range pool {
		if p == nil {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func flatten(rows [][]CandidatePair) []CandidatePair {
	total := 0
	for _, r := range rows {
		total += len(r)
	}
	out := make([]CandidatePair, 0, total)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
