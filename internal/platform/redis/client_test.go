package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/platform/config"
)

func TestNewWithoutURLDisablesCache(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptions(t *testing.T) {
	t.Run("settings override the URL defaults", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:          "redis://:secret@cache.internal:6380/2",
			PoolSize:     16,
			MinIdleConns: 2,
			DialTimeout:  time.Second,
			ReadTimeout:  250 * time.Millisecond,
			WriteTimeout: 300 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 16, opts.PoolSize)
		assert.Equal(t, 2, opts.MinIdleConns)
		assert.Equal(t, time.Second, opts.DialTimeout)
		assert.Equal(t, 250*time.Millisecond, opts.ReadTimeout)
		assert.Equal(t, 300*time.Millisecond, opts.WriteTimeout)
	})

	t.Run("zero settings keep what the URL parsed", func(t *testing.T) {
		opts, err := options(config.RedisConfig{URL: "redis://localhost:6379/0?pool_size=7"})
		require.NoError(t, err)
		assert.Equal(t, 7, opts.PoolSize)
	})

	t.Run("malformed URL", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://localhost:6379"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_URL")
	})
}
