package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Match events
	EventMatchCreated   EventType = "match.created"
	EventMatchCompleted EventType = "match.completed"

	// Cycle events
	EventCycleCompleted EventType = "matching.cycle_completed"
	EventChatsSwept     EventType = "matching.chats_swept"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a single event.
type EventHandler func(event Event) error

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event Event) error
}

// NopPublisher drops every event. Used when no bus is configured.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Match Events
// ═══════════════════════════════════════════════════════════════════════════

// MatchCreatedEvent is emitted when a match is persisted for a week.
type MatchCreatedEvent struct {
	BaseEvent
	ParticipantA  string    `json:"participant_a"`
	ParticipantB  string    `json:"participant_b"`
	Compatibility float64   `json:"compatibility"`
	AssignedBy    string    `json:"assigned_by"`
	WeekStart     time.Time `json:"week_start"`
	WeekEnd       time.Time `json:"week_end"`
}

// Payload implements Event interface.
func (e MatchCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"participant_a": e.ParticipantA,
		"participant_b": e.ParticipantB,
		"compatibility": e.Compatibility,
		"assigned_by":   e.AssignedBy,
		"week_start":    e.WeekStart,
		"week_end":      e.WeekEnd,
	}
}

// NewMatchCreatedEvent creates a new MatchCreatedEvent.
func NewMatchCreatedEvent(matchID, a, b string, compatibility float64, assignedBy string, weekStart, weekEnd time.Time) MatchCreatedEvent {
	return MatchCreatedEvent{
		BaseEvent:     NewBaseEvent(EventMatchCreated, matchID),
		ParticipantA:  a,
		ParticipantB:  b,
		Compatibility: compatibility,
		AssignedBy:    assignedBy,
		WeekStart:     weekStart,
		WeekEnd:       weekEnd,
	}
}

// MatchCompletedEvent is emitted when an expired match is closed and its chat purged.
type MatchCompletedEvent struct {
	BaseEvent
	MessagesDeleted int `json:"messages_deleted"`
}

// Payload implements Event interface.
func (e MatchCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"messages_deleted": e.MessagesDeleted,
	}
}

// NewMatchCompletedEvent creates a new MatchCompletedEvent.
func NewMatchCompletedEvent(matchID string, messagesDeleted int) MatchCompletedEvent {
	return MatchCompletedEvent{
		BaseEvent:       NewBaseEvent(EventMatchCompleted, matchID),
		MessagesDeleted: messagesDeleted,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Cycle Events
// ═══════════════════════════════════════════════════════════════════════════

// CycleCompletedEvent is emitted once per weekly matching run.
type CycleCompletedEvent struct {
	BaseEvent
	WeekStart time.Time `json:"week_start"`
	PoolSize  int       `json:"pool_size"`
	Matched   int       `json:"matched"`
	Unmatched int       `json:"unmatched"`
	Conflicts int       `json:"conflicts"`
	Failures  int       `json:"failures"`
}

// Payload implements Event interface.
func (e CycleCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"week_start": e.WeekStart,
		"pool_size":  e.PoolSize,
		"matched":    e.Matched,
		"unmatched":  e.Unmatched,
		"conflicts":  e.Conflicts,
		"failures":   e.Failures,
	}
}

// NewCycleCompletedEvent creates a new CycleCompletedEvent keyed by cycle-set id.
func NewCycleCompletedEvent(cycleSetID string, weekStart time.Time, poolSize, matched, unmatched, conflicts, failures int) CycleCompletedEvent {
	return CycleCompletedEvent{
		BaseEvent: NewBaseEvent(EventCycleCompleted, cycleSetID),
		WeekStart: weekStart,
		PoolSize:  poolSize,
		Matched:   matched,
		Unmatched: unmatched,
		Conflicts: conflicts,
		Failures:  failures,
	}
}

// ChatsSweptEvent is emitted after an expiry sweep that closed at least one match.
type ChatsSweptEvent struct {
	BaseEvent
	MatchesCompleted int `json:"matches_completed"`
	MessagesDeleted  int `json:"messages_deleted"`
}

// Payload implements Event interface.
func (e ChatsSweptEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"matches_completed": e.MatchesCompleted,
		"messages_deleted":  e.MessagesDeleted,
	}
}

// NewChatsSweptEvent creates a new ChatsSweptEvent.
func NewChatsSweptEvent(matchesCompleted, messagesDeleted int) ChatsSweptEvent {
	return ChatsSweptEvent{
		BaseEvent:        NewBaseEvent(EventChatsSwept, "sweep"),
		MatchesCompleted: matchesCompleted,
		MessagesDeleted:  messagesDeleted,
	}
}
