package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendus/internal/platform/config"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when not configured", func(t *testing.T) {
		client, err := New(ctx, config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects and reports health", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := New(ctx, config.RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Health(ctx))
	})

	t.Run("rejects malformed URL", func(t *testing.T) {
		_, err := New(ctx, config.RedisConfig{URL: "://nope"})
		assert.Error(t, err)
	})
}
