package command

import (
	"context"
	"sync"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/participant"
	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakePool struct {
	participants []*participant.Participant
	errs         []error // returned by successive calls before succeeding
	calls        int
}

func (f *fakePool) ListEligibleWithAnswers(_ context.Context, cycleSetID participant.CycleSetID) ([]*participant.Participant, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}

	out := make([]*participant.Participant, 0, len(f.participants))
	for _, p := range f.participants {
		cp := *p
		cp.Answers = nil
		for _, a := range p.Answers {
			if a.CycleSetID == cycleSetID {
				cp.Answers = append(cp.Answers, a)
			}
		}
		out = append(out, &cp)
	}
	return out, nil
}

type fakeHistory struct {
	pairs []matching.PairKey
}

func (f *fakeHistory) ListHistoryPairs(context.Context) ([]matching.PairKey, error) {
	return f.pairs, nil
}

type fakeQuestionSets struct {
	ids map[participant.CycleSetID]bool
}

func (f *fakeQuestionSets) Exists(_ context.Context, id participant.CycleSetID) (bool, error) {
	return f.ids[id], nil
}

func (f *fakeQuestionSets) FindForWeek(context.Context, time.Time, time.Time) (participant.CycleSetID, error) {
	for id := range f.ids {
		return id, nil
	}
	return "", shared.ErrQuestionSetNotFound
}

type slotKey struct {
	participant participant.ID
	weekStart   time.Time
}

// fakeMatchStore mimics the Postgres match store: one slot per participant
// per week, messages per match, status-guarded completion.
type fakeMatchStore struct {
	mu       sync.Mutex
	matches  map[string]*matching.Match
	order    []string
	slots    map[slotKey]string
	messages map[string]int

	failFor  map[participant.ID]error
	purgeErr map[string]error
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{
		matches:  make(map[string]*matching.Match),
		slots:    make(map[slotKey]string),
		messages: make(map[string]int),
		failFor:  make(map[participant.ID]error),
		purgeErr: make(map[string]error),
	}
}

func (f *fakeMatchStore) Create(_ context.Context, m *matching.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range []participant.ID{m.ParticipantA, m.ParticipantB} {
		if err, ok := f.failFor[id]; ok {
			return err
		}
	}

	a := slotKey{m.ParticipantA, m.WeekStart}
	b := slotKey{m.ParticipantB, m.WeekStart}
	if _, taken := f.slots[a]; taken {
		return shared.ErrParticipantAlreadyMatched
	}
	if _, taken := f.slots[b]; taken {
		return shared.ErrParticipantAlreadyMatched
	}

	cp := *m
	f.matches[m.ID] = &cp
	f.order = append(f.order, m.ID)
	f.slots[a] = m.ID
	f.slots[b] = m.ID
	return nil
}

func (f *fakeMatchStore) ListExpired(_ context.Context, now time.Time) ([]*matching.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*matching.Match
	for _, id := range f.order {
		m := f.matches[id]
		if m.IsExpired(now) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMatchStore) CompleteAndPurge(_ context.Context, matchID string, now time.Time) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.purgeErr[matchID]; ok {
		return 0, false, err
	}
	m, ok := f.matches[matchID]
	if !ok {
		return 0, false, shared.ErrMatchNotFound
	}
	if m.Status != matching.StatusActive {
		return 0, false, nil
	}

	deleted := f.messages[matchID]
	delete(f.messages, matchID)
	if err := m.Complete(now); err != nil {
		return 0, false, err
	}
	return deleted, true, nil
}

func (f *fakeMatchStore) seed(m *matching.Match, messages int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.matches[m.ID] = m
	f.order = append(f.order, m.ID)
	f.slots[slotKey{m.ParticipantA, m.WeekStart}] = m.ID
	f.slots[slotKey{m.ParticipantB, m.WeekStart}] = m.ID
	f.messages[m.ID] = messages
}

func (f *fakeMatchStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}
