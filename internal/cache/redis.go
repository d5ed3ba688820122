package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store shared by every API instance.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis wraps rdb; every key is namespaced with prefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.rdb.Get(ctx, r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, k string, v []byte, ttl time.Duration) {
	_ = r.rdb.Set(ctx, r.key(k), v, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, k string) {
	_ = r.rdb.Del(ctx, r.key(k)).Err()
}

// New picks Redis when rdb is non-nil and the in-process store otherwise.
func New(rdb *redis.Client, prefix string, defaultTTL time.Duration) Store {
	if rdb != nil {
		return NewRedis(rdb, prefix)
	}
	return NewMemory(defaultTTL)
}
