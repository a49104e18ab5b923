package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/internal/cache"
	"github.com/stretchr/testify/require"
)

// TestRedis runs against a live server, e.g. REDIS_URL=redis://localhost:6379/15.
func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := cache.NewRedis(ctx, url, "test:"+uuid.New().String()+":")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	t.Run("expires", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("x"), 50*time.Millisecond))
		require.Eventually(t, func() bool {
			_, ok, err := c.Get(ctx, "short")
			return err == nil && !ok
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "k"))
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestRedisBadURL(t *testing.T) {
	_, err := cache.NewRedis(context.Background(), "not a url", "")
	require.Error(t, err)
}
