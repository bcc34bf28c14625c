package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS PUBLISHER
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the JSON message written to the Redis channel. The chat server
// subscribes to the same channel to open and close rooms.
type Envelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// RedisPublisherConfig contains configuration for RedisPublisher.
type RedisPublisherConfig struct {
	// Channel is the Pub/Sub channel events are written to.
	Channel string

	// InstanceID identifies this worker in published envelopes.
	InstanceID string

	// PublishTimeout bounds a single PUBLISH round trip.
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// RedisPublisher writes events to a Redis channel and then hands them to a
// local publisher. A Redis failure is logged and does not stop local delivery.
type RedisPublisher struct {
	client     redis.UniversalClient
	local      shared.EventPublisher
	channel    string
	instanceID string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRedisPublisher creates a RedisPublisher. local may be nil.
func NewRedisPublisher(client redis.UniversalClient, local shared.EventPublisher, config RedisPublisherConfig) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Channel == "" {
		return nil, errors.New("channel is required")
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if local == nil {
		local = shared.NopPublisher{}
	}

	return &RedisPublisher{
		client:     client,
		local:      local,
		channel:    config.Channel,
		instanceID: config.InstanceID,
		timeout:    config.PublishTimeout,
		logger:     config.Logger,
	}, nil
}

// Publish implements shared.EventPublisher.
func (p *RedisPublisher) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	if err := p.publishRemote(event); err != nil {
		p.logger.Error("failed to publish to redis",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}

	return p.local.Publish(event)
}

func (p *RedisPublisher) publishRemote(event shared.Event) error {
	data, err := json.Marshal(Envelope{
		InstanceID:  p.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Channel returns the channel events are published to.
func (p *RedisPublisher) Channel() string {
	return p.channel
}
