package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/pkg/retry"
)

// setupTestRedis creates a miniredis instance and a redis client for testing.
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

func newTestLocker(client *redis.Client) *Locker {
	return NewLocker(client, NewKeys("test:"), nil).
		WithRetrier(retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(time.Millisecond)))
}

func TestLocker_AcquireIsExclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := newTestLocker(client)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "weekly-cycle", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "test:lock:weekly-cycle", lock.Key())

	stored, err := mr.Get(lock.Key())
	require.NoError(t, err)
	assert.Equal(t, lock.Token(), stored)
	assert.Equal(t, time.Minute, mr.TTL(lock.Key()))

	_, err = locker.Acquire(ctx, "weekly-cycle", time.Minute)
	assert.ErrorIs(t, err, shared.ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists(lock.Key()))

	again, err := locker.Acquire(ctx, "weekly-cycle", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, lock.Token(), again.Token())
}

func TestLocker_ReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := newTestLocker(client)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "weekly-cycle", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := locker.Acquire(ctx, "weekly-cycle", time.Minute)
	require.NoError(t, err)

	err = first.Release(ctx)
	assert.ErrorIs(t, err, ErrLockNotHeld)

	stored, err := mr.Get(second.Key())
	require.NoError(t, err)
	assert.Equal(t, second.Token(), stored)
}

func TestLock_Refresh(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := newTestLocker(client)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "weekly-cycle", time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Refresh(ctx, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(lock.Key()))

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Refresh(ctx, time.Hour), ErrLockNotHeld)
}

func TestLocker_AcquireValidatesInput(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := newTestLocker(client)

	_, err := locker.Acquire(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = locker.Acquire(context.Background(), "weekly-cycle", 0)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestLocker_WithLock(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := newTestLocker(client)
	ctx := context.Background()

	t.Run("runs and releases", func(t *testing.T) {
		ran := false
		err := locker.WithLock(ctx, "sweep", time.Minute, func(ctx context.Context) error {
			ran = true
			assert.True(t, mr.Exists("test:lock:sweep"))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.False(t, mr.Exists("test:lock:sweep"))
	})

	t.Run("propagates fn error and still releases", func(t *testing.T) {
		boom := errors.New("boom")
		err := locker.WithLock(ctx, "sweep", time.Minute, func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, mr.Exists("test:lock:sweep"))
	})

	t.Run("skips fn when held", func(t *testing.T) {
		held, err := locker.Acquire(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		defer held.Release(ctx)

		ran := false
		err = locker.WithLock(ctx, "sweep", time.Minute, func(ctx context.Context) error {
			ran = true
			return nil
		})
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)
		assert.False(t, ran)
	})

	t.Run("extends the lock while fn runs", func(t *testing.T) {
		ttl := 60 * time.Millisecond
		err := locker.WithLock(ctx, "sweep", ttl, func(ctx context.Context) error {
			mr.SetTTL("test:lock:sweep", time.Millisecond)
			assert.Eventually(t, func() bool {
				return mr.TTL("test:lock:sweep") == ttl
			}, time.Second, 5*time.Millisecond)
			return nil
		})
		require.NoError(t, err)
		assert.False(t, mr.Exists("test:lock:sweep"))
	})

	t.Run("cancels fn when the lock is lost", func(t *testing.T) {
		err := locker.WithLock(ctx, "sweep", 30*time.Millisecond, func(ctx context.Context) error {
			mr.Del("test:lock:sweep")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLocker_AcquireServerDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := newTestLocker(client)

	mr.Close()

	_, err := locker.Acquire(context.Background(), "weekly-cycle", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrLockNotAcquired)
}

func TestNewClient(t *testing.T) {
	mr, _ := setupTestRedis(t)

	cfg := DefaultConfig()
	cfg.Host = mr.Host()
	cfg.Port = mustPort(t, mr)

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())

	cfg.Port = 1
	cfg.DialTimeout = 200 * time.Millisecond
	_, err = NewClient(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestKeys(t *testing.T) {
	keys := NewKeys("blackout:")
	assert.Equal(t, "blackout:lock:weekly-cycle", keys.Lock("weekly-cycle"))
	assert.Equal(t, "blackout:pubsub:events", keys.Channel("events"))
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
