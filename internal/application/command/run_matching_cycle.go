// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/participant"
	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN MATCHING CYCLE COMMAND
// Pairs the eligible pool for one week: generate and score every admissible
// pair, assign greedily, persist each committed pair independently.
// ══════════════════════════════════════════════════════════════════════════════

// RunMatchingCycleCommand contains the week and question set of a cycle.
type RunMatchingCycleCommand struct {
	WeekStart  time.Time
	WeekEnd    time.Time
	CycleSetID participant.CycleSetID

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command without touching any store.
func (c RunMatchingCycleCommand) Validate() error {
	if !c.CycleSetID.IsValid() {
		return shared.WrapError("matching", "RunCycle", shared.ErrInvalidInput,
			"cycle_set_id is required", shared.ErrInvalidCycle)
	}
	if c.WeekStart.IsZero() || c.WeekEnd.IsZero() {
		return shared.WrapError("matching", "RunCycle", shared.ErrInvalidInput,
			"week bounds are required", shared.ErrInvalidCycle)
	}
	if !c.WeekEnd.After(c.WeekStart) {
		return shared.WrapError("matching", "RunCycle", shared.ErrInvalidInput,
			"week_end must be after week_start", shared.ErrInvalidCycle)
	}
	return nil
}

// PairFailure is a committed pair that could not be persisted.
type PairFailure struct {
	Pair matching.CandidatePair
	Err  error
}

// RunMatchingCycleResult reports what a cycle did.
type RunMatchingCycleResult struct {
	CycleSetID participant.CycleSetID
	WeekStart  time.Time
	WeekEnd    time.Time

	// Matches are the persisted matches, best score first.
	Matches []*matching.Match

	// Unmatched are pool members not in any persisted match, in pool order.
	Unmatched []participant.ID

	// Conflicts are pairs skipped because a participant already had a match
	// for the week (for example an admin override).
	Conflicts []matching.CandidatePair

	// Failures are pairs whose write failed for any other reason.
	Failures []PairFailure

	PoolSize       int
	CandidatePairs int
	StartedAt      time.Time
	Duration       time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunMatchingCycleConfig tunes the cycle.
type RunMatchingCycleConfig struct {
	// MinPoolSize is the smallest eligible pool worth running. Default: 2.
	MinPoolSize int

	// Workers is the number of goroutines scoring pairs. 1 is sequential.
	Workers int

	Adjustment matching.AdjustmentConfig
}

// DefaultRunMatchingCycleConfig returns default cycle settings.
func DefaultRunMatchingCycleConfig() RunMatchingCycleConfig {
	return RunMatchingCycleConfig{
		MinPoolSize: 2,
		Workers:     1,
		Adjustment:  matching.DefaultAdjustmentConfig(),
	}
}

// RunMatchingCycleDeps are the collaborators of the handler.
type RunMatchingCycleDeps struct {
	Pool         participant.PoolReader
	History      matching.HistoryReader
	Matches      matching.MatchWriter
	QuestionSets matching.QuestionSetReader

	// Publisher may be nil.
	Publisher shared.EventPublisher

	// Retrier wraps store calls. Nil uses retry.DatabaseRetrier.
	Retrier *retry.Retrier

	// Now may be overridden in tests.
	Now func() time.Time
}

// RunMatchingCycleHandler handles the RunMatchingCycleCommand.
type RunMatchingCycleHandler struct {
	deps   RunMatchingCycleDeps
	config RunMatchingCycleConfig
	logger *slog.Logger
}

// NewRunMatchingCycleHandler creates a new RunMatchingCycleHandler.
func NewRunMatchingCycleHandler(deps RunMatchingCycleDeps, config RunMatchingCycleConfig, logger *slog.Logger) *RunMatchingCycleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Retrier == nil {
		deps.Retrier = storeRetrier(logger, "run_matching_cycle")
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if config.MinPoolSize < 2 {
		config.MinPoolSize = 2
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	return &RunMatchingCycleHandler{
		deps:   deps,
		config: config,
		logger: logger.With("handler", "run_matching_cycle"),
	}
}

// Handle runs one matching cycle.
//
// Input problems (bad bounds, unknown question set, pool too small) return
// before anything is written. Per-pair write failures do not stop the cycle:
// the result is returned together with an error wrapping ErrCycleIncomplete.
func (h *RunMatchingCycleHandler) Handle(ctx context.Context, cmd RunMatchingCycleCommand) (*RunMatchingCycleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("run_matching_cycle: validation failed: %w", err)
	}

	startedAt := h.deps.Now()
	log := h.logger.With(
		"cycle_set_id", cmd.CycleSetID,
		"week_start", cmd.WeekStart,
		"correlation_id", cmd.CorrelationID,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Load inputs
	// ─────────────────────────────────────────────────────────────────────────

	exists, err := retry.DoWith(ctx, h.deps.Retrier, func(ctx context.Context) (bool, error) {
		return h.deps.QuestionSets.Exists(ctx, cmd.CycleSetID)
	})
	if err != nil {
		return nil, fmt.Errorf("run_matching_cycle: check question set: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("run_matching_cycle: %s: %w", cmd.CycleSetID, shared.ErrQuestionSetNotFound)
	}

	pool, err := retry.DoWith(ctx, h.deps.Retrier, func(ctx context.Context) ([]*participant.Participant, error) {
		return h.deps.Pool.ListEligibleWithAnswers(ctx, cmd.CycleSetID)
	})
	if err != nil {
		return nil, fmt.Errorf("run_matching_cycle: load pool: %w", err)
	}
	pool = eligibleOnly(pool)

	if len(pool) < h.config.MinPoolSize {
		return nil, fmt.Errorf("run_matching_cycle: pool of %d, need %d: %w",
			len(pool), h.config.MinPoolSize, shared.ErrInsufficientPool)
	}

	historyPairs, err := retry.DoWith(ctx, h.deps.Retrier, func(ctx context.Context) ([]matching.PairKey, error) {
		return h.deps.History.ListHistoryPairs(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("run_matching_cycle: load history: %w", err)
	}
	history := matching.NewHistorySet(historyPairs)

	log.Debug("cycle inputs loaded", "pool_size", len(pool), "history_pairs", len(history))

	// ─────────────────────────────────────────────────────────────────────────
	// Generate and assign
	// ─────────────────────────────────────────────────────────────────────────

	generator := matching.NewGenerator(matching.GeneratorConfig{
		CycleSetID: cmd.CycleSetID,
		Now:        startedAt,
		Workers:    h.config.Workers,
		Adjustment: h.config.Adjustment,
	})

	candidates, err := generator.Generate(ctx, pool, history)
	if err != nil {
		return nil, fmt.Errorf("run_matching_cycle: generate pairs: %w", err)
	}

	assignment := matching.Assign(candidates, pool)

	// ─────────────────────────────────────────────────────────────────────────
	// Persist
	// ─────────────────────────────────────────────────────────────────────────

	result := &RunMatchingCycleResult{
		CycleSetID:     cmd.CycleSetID,
		WeekStart:      cmd.WeekStart,
		WeekEnd:        cmd.WeekEnd,
		Matches:        make([]*matching.Match, 0, len(assignment.Pairs)),
		PoolSize:       len(pool),
		CandidatePairs: len(candidates),
		StartedAt:      startedAt,
	}

	matched := make(map[participant.ID]struct{}, len(pool))
	for _, pair := range assignment.Pairs {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, PairFailure{Pair: pair, Err: err})
			continue
		}

		m, err := h.persist(ctx, cmd, pair)
		switch {
		case err == nil:
			result.Matches = append(result.Matches, m)
			matched[pair.A] = struct{}{}
			matched[pair.B] = struct{}{}
			created := shared.NewMatchCreatedEvent(
				m.ID, m.ParticipantA.String(), m.ParticipantB.String(),
				m.Compatibility, string(m.AssignedBy), m.WeekStart, m.WeekEnd,
			)
			created.CorrelationID = cmd.CorrelationID
			h.publish(log, created)

		case errors.Is(err, shared.ErrParticipantAlreadyMatched):
			log.Info("pair skipped, participant already matched this week",
				"participant_a", pair.A, "participant_b", pair.B)
			result.Conflicts = append(result.Conflicts, pair)

		default:
			log.Error("failed to persist match",
				"participant_a", pair.A, "participant_b", pair.B, "error", err)
			result.Failures = append(result.Failures, PairFailure{Pair: pair, Err: err})
		}
	}

	for _, p := range pool {
		if _, ok := matched[p.ID]; !ok {
			result.Unmatched = append(result.Unmatched, p.ID)
		}
	}
	result.Duration = h.deps.Now().Sub(startedAt)

	completed := shared.NewCycleCompletedEvent(
		string(cmd.CycleSetID), cmd.WeekStart, result.PoolSize,
		len(result.Matches), len(result.Unmatched), len(result.Conflicts), len(result.Failures),
	)
	completed.CorrelationID = cmd.CorrelationID
	h.publish(log, completed)

	log.Info("matching cycle finished",
		"pool_size", result.PoolSize,
		"candidate_pairs", result.CandidatePairs,
		"matched", len(result.Matches),
		"unmatched", len(result.Unmatched),
		"conflicts", len(result.Conflicts),
		"failures", len(result.Failures),
		"duration", result.Duration,
	)

	if len(result.Failures) > 0 {
		errs := make([]error, 0, len(result.Failures))
		for _, f := range result.Failures {
			errs = append(errs, fmt.Errorf("%s-%s: %w", f.Pair.A, f.Pair.B, f.Err))
		}
		return result, fmt.Errorf("run_matching_cycle: %d of %d pairs not persisted: %w: %w",
			len(result.Failures), len(assignment.Pairs), shared.ErrCycleIncomplete, errors.Join(errs...))
	}

	return result, nil
}

func (h *RunMatchingCycleHandler) persist(ctx context.Context, cmd RunMatchingCycleCommand, pair matching.CandidatePair) (*matching.Match, error) {
	m, err := matching.NewAlgorithmMatch(pair, cmd.WeekStart, cmd.WeekEnd, h.deps.Now())
	if err != nil {
		return nil, err
	}

	err = h.deps.Retrier.Do(ctx, func(ctx context.Context) error {
		return h.deps.Matches.Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (h *RunMatchingCycleHandler) publish(log *slog.Logger, event shared.Event) {
	if err := h.deps.Publisher.Publish(event); err != nil {
		log.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

// eligibleOnly drops participants the loader should not have returned,
// and repeated ids.
func eligibleOnly(pool []*participant.Participant) []*participant.Participant {
	seen := make(map[participant.ID]struct{}, len(pool))
	out := make([]*participant.Participant, 0, len(pool))
	for _, p := range pool {
		if p == nil || !p.Eligible() {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// storeRetrier retries only errors the stores mark as transient.
func storeRetrier(logger *slog.Logger, op string) *retry.Retrier {
	return retry.DatabaseRetrier(
		retry.WithRetryIf(shared.IsRetryable),
		retry.WithLogger(logger, op),
	)
}
