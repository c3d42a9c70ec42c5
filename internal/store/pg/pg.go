// Package pg is the Postgres store backend, built on pgxpool.
package pg

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/signon/internal/flow"
	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/store"
)

type Store struct{ pool *pgxpool.Pool }

var _ store.Store = (*Store)(nil)

type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	// Arranque no bloqueante: si la DB está caída igual levantamos y
	// reintentamos en el primer uso.
	if err := pool.Ping(ctx); err != nil {
		logger.From(ctx).Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		logger.From(ctx).Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno para usos avanzados (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) UpsertUser(ctx context.Context, u *flow.User) (*flow.User, error) {
	out := &flow.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO app_user (id, email, name, image)
		VALUES ($1, LOWER($2), $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			name  = EXCLUDED.name,
			image = EXCLUDED.image
		RETURNING id, email, COALESCE(name, ''), COALESCE(image, '')
	`, u.ID, u.Email, nullable(u.Name), nullable(u.Image)).
		Scan(&out.ID, &out.Email, &out.Name, &out.Image)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) LinkAccount(ctx context.Context, userID string, a *flow.Account) error {
	ts := a.Tokens
	var expiresAt *time.Time
	if !ts.ExpiresAt.IsZero() {
		t := ts.ExpiresAt.UTC()
		expiresAt = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identity (
			user_id, provider, provider_type, provider_account_id,
			access_token, refresh_token, id_token, token_type, scope, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			user_id       = EXCLUDED.user_id,
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			id_token      = EXCLUDED.id_token,
			token_type    = EXCLUDED.token_type,
			scope         = EXCLUDED.scope,
			expires_at    = EXCLUDED.expires_at
	`, userID, a.Provider, a.Type, a.ProviderAccountID,
		nullable(ts.AccessToken), nullable(ts.RefreshToken), nullable(ts.IDToken),
		nullable(ts.TokenType), nullable(ts.Scope), expiresAt)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*flow.User, error) {
	out := &flow.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(name, ''), COALESCE(image, '')
		FROM app_user WHERE email = LOWER($1)
	`, strings.TrimSpace(email)).
		Scan(&out.ID, &out.Email, &out.Name, &out.Image)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
