package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/cache"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cache.NewMemory().WithNowFunc(func() time.Time { return now })

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	t.Run("expires", func(t *testing.T) {
		now = now.Add(time.Minute)
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 0, c.Len())
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "d", []byte("x"), time.Hour))
		require.NoError(t, c.Delete(ctx, "d"))
		_, ok, _ := c.Get(ctx, "d")
		require.False(t, ok)
	})
}
