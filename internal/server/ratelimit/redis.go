package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The counter and its expiry are set in one round trip so a crash between
// INCR and PEXPIRE cannot leave a key without a TTL.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return {0, ttl}
end
return {1, ttl}
`)

var errUnexpectedReply = errors.New("ratelimit: unexpected redis reply")

// Redis is a fixed-window limiter shared by every replica.
type Redis struct {
	client redis.UniversalClient
	limit  int
	length time.Duration
	prefix string
}

func NewRedis(client redis.UniversalClient, limit int, length time.Duration, prefix string) *Redis {
	return &Redis{client: client, limit: limit, length: length, prefix: prefix + "rl:"}
}

func (r *Redis) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	ms := r.length.Milliseconds()
	if ms <= 0 {
		return false, 0, fmt.Errorf("ratelimit: window must be at least 1ms")
	}

	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, r.limit, ms).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, errUnexpectedReply
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, retryAfter, nil
}
