// Package cache define la abstracción de caching usada por el flujo de callback.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// Respalda el check store anti-forgery, el cache de discovery y el cache de JWKS.
package cache

import (
	"context"
	"time"
)

// Cache define las operaciones de cache.
type Cache interface {
	// Get obtiene un valor. ok=false si no existe o expiró.
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set guarda un valor con TTL. Si ttl es 0, usa el default del backend.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Take obtiene y elimina una key en una sola operación atómica.
	// Dos llamadas concurrentes sobre la misma key: exactamente una recibe ok=true.
	Take(ctx context.Context, key string) (value []byte, ok bool)
}

// Config configuración para crear un cache.
type Config struct {
	Kind   string // "memory" | "redis"
	Addr   string // redis host:port
	DB     int
	Prefix string // prefijo para todas las keys

	DefaultTTL time.Duration
}
