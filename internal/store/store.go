// Package store persists the users and linked accounts produced by completed
// sign-in flows. Two backends exist: an in-memory map for tests and single
// node setups, and Postgres for real deployments.
package store

import (
	"context"
	"errors"

	"github.com/dropDatabas3/signon/internal/flow"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store is the persistence boundary of the callback pipeline.
//
// UpsertUser matches by lowercased email: a returning user keeps their ID and
// has name/image refreshed. LinkAccount upserts on (provider,
// provider_account_id), so re-authenticating rotates the stored tokens instead
// of duplicating the link.
type Store interface {
	UpsertUser(ctx context.Context, u *flow.User) (*flow.User, error)
	LinkAccount(ctx context.Context, userID string, a *flow.Account) error
	GetUserByEmail(ctx context.Context, email string) (*flow.User, error)
	Ping(ctx context.Context) error
	Close()
}
