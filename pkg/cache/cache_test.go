package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ordersync/dbcore/pkg/cache"
)

func TestCache_SetGet(t *testing.T) {
	t.Parallel()

	c := cache.New[string](cache.WithJanitorInterval(0))
	defer c.Close()

	c.Set("key", "value", time.Minute)

	got, ok := c.Get("key")
	require.True(t, ok)
	require.Equal(t, "value", got)
}

func TestCache_GetMissing(t *testing.T) {
	t.Parallel()

	c := cache.New[int](cache.WithJanitorInterval(0))
	defer c.Close()

	got, ok := c.Get("absent")
	require.False(t, ok)
	require.Zero(t, got)
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()

	c := cache.New[string](cache.WithJanitorInterval(0))
	defer c.Close()

	c.Set("key", "value", 20*time.Millisecond)

	_, ok := c.Get("key")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = c.Get("key")
	require.False(t, ok)
	require.Zero(t, c.Len(), "lazy expiry should remove the entry")
}

func TestCache_NoExpiry(t *testing.T) {
	t.Parallel()

	c := cache.New[string](cache.WithJanitorInterval(0))
	defer c.Close()

	c.Set("key", "value", 0)

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	require.True(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	t.Parallel()

	c := cache.New[string](cache.WithJanitorInterval(0))
	defer c.Close()

	c.Set("key", "first", time.Minute)
	c.Set("key", "second", time.Minute)

	got, ok := c.Get("key")
	require.True(t, ok)
	require.Equal(t, "second", got)
	require.Equal(t, 1, c.Len())
}

func TestCache_Delete(t *testing.T) {
	t.Parallel()

	c := cache.New[string](cache.WithJanitorInterval(0))
	defer c.Close()

	c.Set("key", "value", time.Minute)
	c.Delete("key")

	_, ok := c.Get("key")
	require.False(t, ok)

	c.Delete("absent")
}

func TestCache_Purge(t *testing.T) {
	t.Parallel()

	c := cache.New[int](cache.WithJanitorInterval(0))
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Purge()

	require.Zero(t, c.Len())
}

func TestCache_Janitor(t *testing.T) {
	t.Parallel()

	c := cache.New[string](cache.WithJanitorInterval(10 * time.Millisecond))
	defer c.Close()

	c.Set("short", "value", 15*time.Millisecond)
	c.Set("long", "value", time.Hour)

	require.Eventually(t, func() bool {
		return c.Len() == 1
	}, time.Second, 10*time.Millisecond, "janitor should reap the expired entry")

	_, ok := c.Get("long")
	require.True(t, ok)
}

func TestCache_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := cache.New[string]()
	c.Close()
	c.Close()

	c.Set("key", "value", time.Minute)
	_, ok := c.Get("key")
	require.True(t, ok, "cache stays usable after Close")
}
