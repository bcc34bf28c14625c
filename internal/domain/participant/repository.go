package participant

import "context"

// PoolReader loads the weekly matching pool from the profile store.
type PoolReader interface {
	// ListEligibleWithAnswers returns participants with status ACTIVE and role
	// USER, each carrying only the answers for cycleSetID. Results are ordered
	// by (joined_at, id) so pair generation is reproducible.
	ListEligibleWithAnswers(ctx context.Context, cycleSetID CycleSetID) ([]*Participant, error)
}
