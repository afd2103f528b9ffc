package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "storefront")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetGetExists(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	got, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.Set(ctx, "k", "v", time.Second))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrWindow(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	n, ttl, err := c.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(20 * time.Second)
	n, ttl, err = c.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 40*time.Second, ttl, "the window does not slide")

	mr.FastForward(time.Minute)
	n, _, err = c.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGenerateKeyAndPublish(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	assert.Equal(t, "storefront:hits:ip:1.2.3.4", c.GenerateKey("hits", "ip:1.2.3.4"))

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("alerts")

	require.NoError(t, c.Publish(ctx, "alerts", []byte("hello")))
	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "hello", msg.Message)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
	require.NoError(t, c.Ping(ctx))
}
