package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_InvalidURL(t *testing.T) {
	_, err := NewCache("not a url", "", 0, time.Minute)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "hint:acme:abc", hintKey("acme", "abc"))
	assert.Equal(t, "metric:accept", metricKey("accept"))
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewCache("redis://"+mr.Addr(), "", 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestFingerprintHint(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	got, err := c.GetFingerprintHint(ctx, "acme", "h1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.SetFingerprintHint(ctx, "acme", "h1", "fp-1"))
	got, err = c.GetFingerprintHint(ctx, "acme", "h1")
	require.NoError(t, err)
	assert.Equal(t, "fp-1", got)
	assert.Equal(t, time.Minute, mr.TTL("hint:acme:h1"))

	mr.FastForward(time.Minute + time.Second)
	got, err = c.GetFingerprintHint(ctx, "acme", "h1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckRateLimit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.CheckRateLimit(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.CheckRateLimit(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CheckRateLimit(ctx, "client-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckRateLimit_WindowDoesNotSlide(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	// one request every 6s against 3 per 10s never exceeds the limit
	for i := 0; i < 6; i++ {
		ok, err := c.CheckRateLimit(ctx, "steady", 3, 10*time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
		mr.FastForward(6 * time.Second)
	}
}

func TestCheckRateLimit_BlockedUntilWindowEnds(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.CheckRateLimit(ctx, "burst", 3, 10*time.Second)
		require.NoError(t, err)
	}
	ttl := mr.TTL("rl:burst")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 10*time.Second)

	mr.FastForward(4 * time.Second)
	ok, err := c.CheckRateLimit(ctx, "burst", 3, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, mr.TTL("rl:burst"))

	mr.FastForward(6 * time.Second)
	ok, err = c.CheckRateLimit(ctx, "burst", 3, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckRateLimit_RepairsMissingExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("rl:stuck", "7"))
	ok, err := c.CheckRateLimit(ctx, "stuck", 3, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("rl:stuck"))

	mr.FastForward(10 * time.Second)
	ok, err = c.CheckRateLimit(ctx, "stuck", 3, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMetrics(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	n, err := c.GetMetric(ctx, "accept")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.IncrementMetric(ctx, "accept"))
	require.NoError(t, c.IncrementMetric(ctx, "accept"))
	n, err = c.GetMetric(ctx, "accept")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPing(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
