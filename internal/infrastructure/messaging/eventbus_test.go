package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var created, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventMatchCreated, func(e shared.Event) error {
		created = append(created, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	weekStart := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(shared.NewMatchCreatedEvent("m1", "a", "b", 0.9, "ALGORITHM", weekStart, weekStart.AddDate(0, 0, 7))))
	require.NoError(t, bus.Publish(shared.NewMatchCompletedEvent("m1", 3)))

	assert.Equal(t, []shared.EventType{shared.EventMatchCreated}, created)
	assert.Equal(t, []shared.EventType{shared.EventMatchCreated, shared.EventMatchCompleted}, all)
	assert.Equal(t, Stats{Published: 2, HandlerSuccess: 3}, bus.Stats())
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("kaboom") }))

	reached := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		reached = true
		return nil
	}))

	assert.NoError(t, bus.Publish(shared.NewChatsSweptEvent(1, 4)))
	assert.True(t, reached)
	assert.Equal(t, int64(2), bus.Stats().HandlerFailures)
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	var mu sync.Mutex
	seen := map[string]bool{}
	require.NoError(t, bus.Subscribe(shared.EventMatchCompleted, func(e shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen[e.AggregateID()] = true
		mu.Unlock()
		handled.Add(1)
		return nil
	}))

	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		require.NoError(t, bus.Publish(shared.NewMatchCompletedEvent(id, 0)))
	}

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(5), handled.Load())
	assert.Len(t, seen, 5)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewMatchCompletedEvent("m1", 0)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventMatchCreated, func(shared.Event) error { return nil }), ErrEventBusClosed)

	select {
	case <-bus.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventMatchCreated, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}
