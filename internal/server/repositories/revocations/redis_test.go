package revocations

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/artelie/backend/internal/server/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisRepository(client, "test:"), s
}

func TestRedisRevoke_InsertIfAbsent(t *testing.T) {
	repo, s := newRedisRepo(t)
	ctx := context.Background()

	rev := models.Revocation{JTI: "j1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}

	won, err := repo.Revoke(ctx, rev)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Revoke(ctx, rev)
	require.NoError(t, err)
	assert.False(t, won)

	assert.True(t, s.Exists("test:revoked:j1"))
	ttl := s.TTL("test:revoked:j1")
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestRedisRevoke_ConcurrentSingleWinner(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	rev := models.Revocation{JTI: "race", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if won, err := repo.Revoke(ctx, rev); err == nil && won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisIsRevoked_ExpiresWithToken(t *testing.T) {
	repo, s := newRedisRepo(t)
	ctx := context.Background()

	revoked, err := repo.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = repo.Revoke(ctx, models.Revocation{JTI: "j1", UserID: "u1", ExpiresAt: time.Now().Add(10 * time.Second)})
	require.NoError(t, err)

	revoked, err = repo.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, revoked)

	s.FastForward(11 * time.Second)

	revoked, err = repo.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevoke_PastExpiryStillStored(t *testing.T) {
	repo, s := newRedisRepo(t)

	won, err := repo.Revoke(context.Background(), models.Revocation{JTI: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, time.Second, s.TTL("test:revoked:old"))
}

func TestRedisRepository_ConnectionError(t *testing.T) {
	repo, s := newRedisRepo(t)
	s.Close()

	_, err := repo.Revoke(context.Background(), models.Revocation{JTI: "x", ExpiresAt: time.Now().Add(time.Minute)})
	require.Error(t, err)
	_, err = repo.IsRevoked(context.Background(), "x")
	require.Error(t, err)
}
