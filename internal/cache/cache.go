// Package cache provides a small byte-value cache with a Redis backend and
// an in-process fallback used when Redis is disabled or unreachable.
package cache

import (
	"context"
	"time"
)

// Store is a best-effort key/value cache. Errors are swallowed by the
// implementations: a cache miss is always a safe answer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}
