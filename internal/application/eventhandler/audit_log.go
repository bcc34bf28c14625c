// Package eventhandler contains subscribers of the in-process event bus.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT LOG HANDLER
// Writes one structured log line per domain event so cycles and sweeps can be
// reconstructed from the worker logs alone.
// ═══════════════════════════════════════════════════════════════════════════

// AuditLogHandler logs domain events.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler creates a new AuditLogHandler.
func NewAuditLogHandler(logger *slog.Logger) *AuditLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogHandler{logger: logger.With("component", "audit")}
}

// Handle implements shared.EventHandler.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	attrs := []any{
		"event_type", string(event.EventType()),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	}

	level := slog.LevelDebug
	switch e := event.(type) {
	case shared.MatchCreatedEvent:
		level = slog.LevelInfo
		attrs = append(attrs,
			"participant_a", e.ParticipantA,
			"participant_b", e.ParticipantB,
			"compatibility", e.Compatibility,
			"assigned_by", e.AssignedBy,
		)
	case shared.MatchCompletedEvent:
		attrs = append(attrs, "messages_deleted", e.MessagesDeleted)
	case shared.CycleCompletedEvent:
		level = slog.LevelInfo
		if e.Failures > 0 {
			level = slog.LevelWarn
		}
		attrs = append(attrs,
			"pool_size", e.PoolSize,
			"matched", e.Matched,
			"unmatched", e.Unmatched,
			"conflicts", e.Conflicts,
			"failures", e.Failures,
		)
	case shared.ChatsSweptEvent:
		level = slog.LevelInfo
		attrs = append(attrs,
			"matches_completed", e.MatchesCompleted,
			"messages_deleted", e.MessagesDeleted,
		)
	}

	h.logger.Log(context.Background(), level, "domain event", attrs...)
	return nil
}

// Subscriber is implemented by the event bus.
type Subscriber interface {
	SubscribeAll(handler shared.EventHandler) error
}

// Register subscribes the handler to every event.
func (h *AuditLogHandler) Register(bus Subscriber) error {
	return bus.SubscribeAll(h.Handle)
}
