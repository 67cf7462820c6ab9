package revocations

import (
	"context"
	"fmt"
	"time"

	"github.com/artelie/backend/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "artelie:"

// RedisRepository keeps one key per revoked jti. Each key expires together
// with the token it names, so the set never outgrows the live tokens.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix + "revoked:", now: time.Now}
}

func (r *RedisRepository) key(jti string) string {
	return r.prefix + jti
}

func (r *RedisRepository) Revoke(ctx context.Context, rev models.Revocation) (bool, error) {
	ttl := rev.ExpiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	inserted, err := r.client.SetNX(ctx, r.key(rev.JTI), rev.UserID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return inserted, nil
}

func (r *RedisRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n == 1, nil
}
