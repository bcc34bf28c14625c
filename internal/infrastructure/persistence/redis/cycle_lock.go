package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCRIPTS
// ══════════════════════════════════════════════════════════════════════════════

// Both scripts only touch the key when it still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCKER
// ══════════════════════════════════════════════════════════════════════════════

// Locker hands out single-owner locks backed by SET NX PX.
// Two worker replicas firing the same weekly schedule race on the lock; the
// loser skips the run.
type Locker struct {
	client  redis.UniversalClient
	keys    Keys
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewLocker creates a Locker on the given client.
func NewLocker(client redis.UniversalClient, keys Keys, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Locker{
		client:  client,
		keys:    keys,
		retrier: retry.RedisRetrier(retry.WithLogger(logger, "cycle_lock")),
		logger:  logger,
	}
}

// WithRetrier replaces the retrier used for Redis round trips.
func (l *Locker) WithRetrier(r *retry.Retrier) *Locker {
	l.retrier = r
	return l
}

// Acquire takes the lock on resource for ttl. It returns an error wrapping
// shared.ErrLockNotAcquired when someone else holds it.
func (l *Locker) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	if resource == "" {
		return nil, fmt.Errorf("acquire lock: %w", shared.ErrEmptyValue)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("acquire lock %s: ttl %s: %w", resource, ttl, shared.ErrValueOutOfRange)
	}

	key := l.keys.Lock(resource)
	token := uuid.NewString()

	ok, err := retry.DoWith(ctx, l.retrier, func(ctx context.Context) (bool, error) {
		return l.client.SetNX(ctx, key, token, ttl).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, shared.ErrLockNotAcquired)
	}

	l.logger.Debug("lock acquired", "key", key, "ttl", ttl)

	return &Lock{
		client: l.client,
		key:    key,
		token:  token,
	}, nil
}

// WithLock runs fn while holding the lock on resource and releases it
// afterwards. fn is not called when the lock is taken. The lock is extended
// every ttl/3 while fn runs; if it is lost, fn's context is cancelled.
func (l *Locker) WithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, resource, ttl)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.heartbeat(runCtx, cancel, lock, ttl)
	}()

	defer func() {
		cancel()
		<-done

		// Release on a fresh context so a cancelled run still frees the key.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()

		if err := lock.Release(releaseCtx); err != nil {
			l.logger.Warn("failed to release lock", "key", lock.Key(), "error", err)
		}
	}()

	return fn(runCtx)
}

func (l *Locker) heartbeat(ctx context.Context, cancel context.CancelFunc, lock *Lock, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := lock.Refresh(ctx, ttl)
		switch {
		case err == nil || ctx.Err() != nil:
		case errors.Is(err, ErrLockNotHeld):
			l.logger.Warn("lock lost, cancelling run", "key", lock.Key())
			cancel()
			return
		default:
			l.logger.Warn("failed to extend lock", "key", lock.Key(), "error", err)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCK
// ══════════════════════════════════════════════════════════════════════════════

// Lock is a held lock. The token identifies this holder.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Key returns the Redis key of the lock.
func (lk *Lock) Key() string {
	return lk.key
}

// Token returns the random value stored under the key.
func (lk *Lock) Token() string {
	return lk.token
}

// Release deletes the key if it still carries this holder's token.
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return fmt.Errorf("release lock %s: %w", lk.key, ErrLockNotHeld)
	}
	return nil
}

// Refresh resets the TTL if the lock is still held by this holder.
func (lk *Lock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, lk.client, []string{lk.key}, lk.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return fmt.Errorf("refresh lock %s: %w", lk.key, ErrLockNotHeld)
	}
	return nil
}
