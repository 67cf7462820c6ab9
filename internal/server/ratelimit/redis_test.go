package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int, length time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, limit, length, "test:"), s
}

func TestRedis_FixedWindow(t *testing.T) {
	l, s := newRedisLimiter(t, 2, 500*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "login:ip", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := l.Allow(ctx, "login:ip", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.True(t, s.Exists("test:rl:login:ip"))

	s.FastForward(600 * time.Millisecond)
	ok, _, err = l.Allow(ctx, "login:ip", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ConcurrentCallersShareTheBudget(t *testing.T) {
	l, _ := newRedisLimiter(t, 5, time.Minute)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, err := l.Allow(context.Background(), "register:ip", time.Now()); err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, allowed.Load())
}

func TestRedis_ServerDown(t *testing.T) {
	l, s := newRedisLimiter(t, 1, time.Minute)
	s.Close()

	_, _, err := l.Allow(context.Background(), "k", time.Now())
	assert.Error(t, err)
}
