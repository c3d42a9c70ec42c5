// Package memory is the in-memory store backend. Good enough for tests and
// for running without a database; nothing survives a restart.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dropDatabas3/signon/internal/flow"
	"github.com/dropDatabas3/signon/internal/store"
)

type Mem struct {
	mu       sync.RWMutex
	byEmail  map[string]*flow.User            // key: lowercased email
	byID     map[string]*flow.User            // key: user ID
	accounts map[string]map[string]flowAccRef // userID -> (provider:providerAccountID) -> account
}

type flowAccRef struct{ acc flow.Account }

func New() *Mem {
	return &Mem{
		byEmail:  make(map[string]*flow.User),
		byID:     make(map[string]*flow.User),
		accounts: make(map[string]map[string]flowAccRef),
	}
}

var _ store.Store = (*Mem)(nil)

func (m *Mem) UpsertUser(_ context.Context, u *flow.User) (*flow.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	if email != "" {
		if prev, ok := m.byEmail[email]; ok {
			prev.Name = u.Name
			prev.Image = u.Image
			cp := *prev
			return &cp, nil
		}
	}

	cp := *u
	cp.Email = email
	m.byID[cp.ID] = &cp
	if email != "" {
		m.byEmail[email] = &cp
	}
	out := cp
	return &out, nil
}

func (m *Mem) LinkAccount(_ context.Context, userID string, a *flow.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[userID]; !ok {
		return store.ErrNotFound
	}
	links := m.accounts[userID]
	if links == nil {
		links = make(map[string]flowAccRef)
		m.accounts[userID] = links
	}
	links[a.Provider+":"+a.ProviderAccountID] = flowAccRef{acc: *a}
	return nil
}

func (m *Mem) GetUserByEmail(_ context.Context, email string) (*flow.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// Accounts returns the linked accounts for a user. Test helper.
func (m *Mem) Accounts(userID string) []flow.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]flow.Account, 0, len(m.accounts[userID]))
	for _, ref := range m.accounts[userID] {
		out = append(out, ref.acc)
	}
	return out
}

func (m *Mem) Ping(context.Context) error { return nil }

func (m *Mem) Close() {}
