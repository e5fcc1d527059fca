package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryThrottle_Window(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	th := NewMemoryThrottle(2, time.Minute)
	th.now = func() time.Time { return now }

	blocked, _ := th.Blocked(ctx, "ip:a")
	assert.False(t, blocked)

	require.NoError(t, th.Fail(ctx, "ip:a", "name:x"))
	require.NoError(t, th.Fail(ctx, "ip:a"))
	blocked, _ = th.Blocked(ctx, "ip:b", "ip:a")
	assert.True(t, blocked)
	blocked, _ = th.Blocked(ctx, "name:x")
	assert.False(t, blocked)

	now = now.Add(time.Minute)
	blocked, _ = th.Blocked(ctx, "ip:a")
	assert.False(t, blocked, "window elapsed")

	require.NoError(t, th.Fail(ctx, "name:x"))
	require.NoError(t, th.Fail(ctx, "name:x"))
	require.NoError(t, th.Reset(ctx, "name:x"))
	blocked, _ = th.Blocked(ctx, "name:x")
	assert.False(t, blocked)
}

func TestRedisThrottle_Window(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	th := NewRedisThrottle(rdb, 2, time.Minute)

	require.NoError(t, th.Fail(ctx, "ip:a"))
	require.NoError(t, th.Fail(ctx, "ip:a"))
	blocked, err := th.Blocked(ctx, "ip:a")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.True(t, mr.TTL(redisThrottlePrefix+"ip:a") > 0)

	mr.FastForward(time.Minute + time.Second)
	blocked, err = th.Blocked(ctx, "ip:a")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, th.Fail(ctx, "ip:a"))
	require.NoError(t, th.Fail(ctx, "ip:a"))
	require.NoError(t, th.Reset(ctx, "ip:a"))
	assert.False(t, mr.Exists(redisThrottlePrefix+"ip:a"))
}

func TestRedisThrottle_Unavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	th := NewRedisThrottle(rdb, 1, time.Minute)
	_, err := th.Blocked(context.Background(), "ip:a")
	assert.ErrorIs(t, err, ErrThrottleUnavailable)
}
