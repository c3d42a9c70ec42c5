// Package redis implementa cache.Cache sobre Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/signon/internal/cache"
	goredis "github.com/redis/go-redis/v9"
)

type Redis struct {
	client     *goredis.Client
	prefix     string
	defaultTTL time.Duration
}

// New crea un cache Redis y verifica la conexión.
func New(cfg cache.Config) (*Redis, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Redis{client: rdb, prefix: cfg.Prefix, defaultTTL: ttl}, nil
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Take usa GETDEL: la atomicidad la garantiza Redis, incluso entre procesos.
func (r *Redis) Take(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.GetDel(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Client expone el cliente subyacente (rate limiting comparte la conexión).
func (r *Redis) Client() *goredis.Client {
	return r.client
}

// Close cierra la conexión.
func (r *Redis) Close() error {
	return r.client.Close()
}
