package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		status := NewCompositeHealthChecker("v1").Check(context.Background())
		assert.True(t, status.Healthy)
		assert.True(t, status.Ready)
		assert.Equal(t, "v1", status.Version)
	})

	t.Run("required and optional failures", func(t *testing.T) {
		c := NewCompositeHealthChecker("v1")
		c.AddCheck("postgres", NewDatabaseCheck(pingerFunc(func(context.Context) error { return nil })))
		c.AddOptionalCheck("redis", func(context.Context) error { return errors.New("refused") })

		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.False(t, status.Ready)
		assert.Equal(t, "Some checks failed: redis", status.Message)
		require.Contains(t, status.Checks, "redis")
		assert.True(t, status.Checks["redis"].Optional)
		assert.Equal(t, "refused", status.Checks["redis"].Message)

		c.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
		status = c.Check(context.Background())
		assert.False(t, status.Healthy)
		assert.Equal(t, "Some checks failed: postgres, redis", status.Message)

		c.AddCheck("postgres", func(context.Context) error { return nil })
		c.AddOptionalCheck("redis", func(context.Context) error { return nil })
		status = c.Check(context.Background())
		assert.True(t, status.Ready)
		assert.Len(t, status.Checks, 2, "re-adding a name replaces the check")
		assert.Equal(t, "All checks passed", status.Message)
	})

	t.Run("check timeout", func(t *testing.T) {
		c := NewCompositeHealthChecker("v1", WithCheckTimeout(10*time.Millisecond))
		c.AddCheck("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		status := c.Check(context.Background())
		assert.False(t, status.Healthy)
		assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
	})
}
