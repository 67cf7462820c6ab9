package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FixedWindow(t *testing.T) {
	l := NewMemory(2, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4", now)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := l.Allow(ctx, "1.2.3.4", now.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, retry)

	ok, _, _ = l.Allow(ctx, "5.6.7.8", now.Add(10*time.Second))
	assert.True(t, ok, "keys are independent")

	ok, _, _ = l.Allow(ctx, "1.2.3.4", now.Add(time.Minute))
	assert.True(t, ok, "a new window starts at the reset time")
}

func TestMemory_SweepsExpiredWindows(t *testing.T) {
	l := NewMemory(1, time.Second)
	ctx := context.Background()
	now := time.Now()

	for _, k := range []string{"a", "b", "c"} {
		_, _, _ = l.Allow(ctx, k, now)
	}
	assert.Equal(t, 3, l.size())

	_, _, _ = l.Allow(ctx, "d", now.Add(2*time.Second))
	assert.Equal(t, 1, l.size())
}
