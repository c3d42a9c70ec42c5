// Package memory implementa cache.Cache en memoria sobre go-cache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/signon/internal/cache"
	gocache "github.com/patrickmn/go-cache"
)

type Mem struct {
	c *gocache.Cache

	// mu serializa Take: go-cache no expone un get-and-delete atómico.
	mu sync.Mutex
}

var _ cache.Cache = (*Mem)(nil)

// New crea un cache en memoria con el TTL por defecto dado.
func New(defaultTTL time.Duration) *Mem {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *Mem) Delete(ctx context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *Mem) Take(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	m.c.Delete(key)
	b, _ := v.([]byte)
	return b, true
}
