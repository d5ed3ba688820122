package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is a process-local Store backed by go-cache.
type Memory struct{ c *gocache.Cache }

// NewMemory returns a Memory store whose entries default to defaultTTL.
func NewMemory(defaultTTL time.Duration) *Memory {
	return &Memory{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Memory) Get(_ context.Context, k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *Memory) Set(_ context.Context, k string, v []byte, ttl time.Duration) { m.c.Set(k, v, ttl) }
func (m *Memory) Delete(_ context.Context, k string)                           { m.c.Delete(k) }
