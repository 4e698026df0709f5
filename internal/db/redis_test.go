package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisDB, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	r, err := NewRedisDB(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, s
}

func TestRedisCacheRoundTrip(t *testing.T) {
	r, s := newTestRedis(t)
	ctx := context.Background()

	type status struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, r.SetCache(ctx, "queue_status", status{Total: 42}, time.Minute))
	assert.True(t, s.Exists("powerline:cache:queue_status"))

	var got status
	require.NoError(t, r.GetCache(ctx, "queue_status", &got))
	assert.Equal(t, int64(42), got.Total)

	s.FastForward(2 * time.Minute)
	assert.ErrorIs(t, r.GetCache(ctx, "queue_status", &got), ErrCacheMiss)
}

func TestRedisInvalidateCachePattern(t *testing.T) {
	r, s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetCache(ctx, "admin_stats:7", 1, time.Minute))
	require.NoError(t, r.SetCache(ctx, "admin_stats:30", 2, time.Minute))
	require.NoError(t, r.SetCache(ctx, "queue_status", 3, time.Minute))

	require.NoError(t, r.InvalidateCache(ctx, "admin_stats:*"))
	assert.False(t, s.Exists("powerline:cache:admin_stats:7"))
	assert.False(t, s.Exists("powerline:cache:admin_stats:30"))
	assert.True(t, s.Exists("powerline:cache:queue_status"))
}

func TestRedisCorruptEntryIsMiss(t *testing.T) {
	r, s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set("powerline:cache:queue_status", "{not json"))

	var got map[string]int
	assert.ErrorIs(t, r.GetCache(ctx, "queue_status", &got), ErrCacheMiss)
	assert.False(t, s.Exists("powerline:cache:queue_status"))
}

func TestRedisInvalidateManyKeys(t *testing.T) {
	r, s := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3*scanBatch; i++ {
		require.NoError(t, r.SetCache(ctx, fmt.Sprintf("queue:page:%d", i), i, time.Minute))
	}
	require.NoError(t, r.SetCache(ctx, "admin_stats:7", 1, time.Minute))

	require.NoError(t, r.InvalidateCache(ctx, "queue:*"))
	assert.Len(t, s.Keys(), 1)
	assert.True(t, s.Exists("powerline:cache:admin_stats:7"))
}
