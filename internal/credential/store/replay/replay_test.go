package replay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "tempauth/pkg/domain"
)

func TestInMemoryGuard(t *testing.T) {
	ctx := context.Background()
	credID := id.NewCredentialID()

	t.Run("first use succeeds, replay is rejected", func(t *testing.T) {
		guard := NewInMemory()

		ok, err := guard.MarkUsed(ctx, credID, "123456", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = guard.MarkUsed(ctx, credID, "123456", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same code on another credential is independent", func(t *testing.T) {
		guard := NewInMemory()

		ok, err := guard.MarkUsed(ctx, credID, "123456", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = guard.MarkUsed(ctx, id.NewCredentialID(), "123456", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("code becomes reusable after the window closes", func(t *testing.T) {
		now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		guard := NewInMemoryWithClock(func() time.Time { return now })

		ok, err := guard.MarkUsed(ctx, credID, "654321", 90*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		now = now.Add(91 * time.Second)
		ok, err = guard.MarkUsed(ctx, credID, "654321", 90*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRedisGuard(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	credID := id.NewCredentialID()
	guard := NewRedis(client)

	t.Run("first use succeeds, replay is rejected", func(t *testing.T) {
		ok, err := guard.MarkUsed(ctx, credID, "123456", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = guard.MarkUsed(ctx, credID, "123456", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("code becomes reusable after the TTL lapses", func(t *testing.T) {
		ok, err := guard.MarkUsed(ctx, credID, "654321", 90*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		srv.FastForward(91 * time.Second)

		ok, err = guard.MarkUsed(ctx, credID, "654321", 90*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
