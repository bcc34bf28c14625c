package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/domain/shared"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestRedisPublisher_WritesEnvelope(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "blackout:pubsub:events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	local := syncBus()
	defer local.Close()
	var delivered []shared.EventType
	require.NoError(t, local.SubscribeAll(func(e shared.Event) error {
		delivered = append(delivered, e.EventType())
		return nil
	}))

	pub, err := NewRedisPublisher(client, local, RedisPublisherConfig{
		Channel:    "blackout:pubsub:events",
		InstanceID: "worker-1",
	})
	require.NoError(t, err)

	weekStart := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	event := shared.NewMatchCreatedEvent("m1", "p1", "p2", 0.75, "ALGORITHM", weekStart, weekStart.AddDate(0, 0, 7))
	require.NoError(t, pub.Publish(event))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "worker-1", env.InstanceID)
	assert.Equal(t, shared.EventMatchCreated, env.EventType)
	assert.Equal(t, "m1", env.AggregateID)
	assert.Equal(t, "p1", env.Payload["participant_a"])
	assert.Equal(t, 0.75, env.Payload["compatibility"])

	assert.Equal(t, []shared.EventType{shared.EventMatchCreated}, delivered)
}

func TestRedisPublisher_RedisDownStillDeliversLocally(t *testing.T) {
	mr, client := setupTestRedis(t)

	local := syncBus()
	defer local.Close()
	delivered := 0
	require.NoError(t, local.SubscribeAll(func(shared.Event) error {
		delivered++
		return nil
	}))

	pub, err := NewRedisPublisher(client, local, RedisPublisherConfig{
		Channel:        "events",
		PublishTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	mr.Close()

	assert.NoError(t, pub.Publish(shared.NewChatsSweptEvent(2, 10)))
	assert.Equal(t, 1, delivered)
}

func TestNewRedisPublisher_Validation(t *testing.T) {
	_, client := setupTestRedis(t)

	_, err := NewRedisPublisher(nil, nil, RedisPublisherConfig{Channel: "events"})
	assert.Error(t, err)

	_, err = NewRedisPublisher(client, nil, RedisPublisherConfig{})
	assert.Error(t, err)

	pub, err := NewRedisPublisher(client, nil, RedisPublisherConfig{Channel: "events"})
	require.NoError(t, err)
	assert.Equal(t, "events", pub.Channel())
	assert.NotEmpty(t, pub.instanceID)
}
