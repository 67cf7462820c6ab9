// Package ratelimit implements fixed-window request throttling keyed by an
// arbitrary string (client IP per endpoint), backed by process memory or
// Redis.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request under key fits in the current
// window. When it does not, retryAfter tells the client how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}
