package memory_test

import (
	"context"
	"testing"

	"github.com/dropDatabas3/signon/internal/flow"
	"github.com/dropDatabas3/signon/internal/provider"
	"github.com/dropDatabas3/signon/internal/store"
	"github.com/dropDatabas3/signon/internal/store/memory"
)

func TestUpsertUser_ReturningUserKeepsID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := memory.New()

	first, err := m.UpsertUser(ctx, &flow.User{ID: "u1", Name: "Ada", Email: "Ada@Example.com"})
	if err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}
	if first.Email != "ada@example.com" {
		t.Fatalf("email not lowercased: %q", first.Email)
	}

	// mismo email, distinto ID generado: debe conservar el ID original
	second, err := m.UpsertUser(ctx, &flow.User{ID: "u2", Name: "Ada L.", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}
	if second.ID != "u1" {
		t.Fatalf("returning user got new ID %q", second.ID)
	}
	if second.Name != "Ada L." {
		t.Fatalf("name not refreshed: %q", second.Name)
	}
}

func TestLinkAccount_UpsertsOnProviderAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := memory.New()

	u, err := m.UpsertUser(ctx, &flow.User{ID: "u1", Email: "x@y.z"})
	if err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}

	acc := &flow.Account{
		Provider:          "github",
		Type:              "oauth2",
		ProviderAccountID: "42",
		Tokens:            provider.TokenSet{AccessToken: "tok-1"},
	}
	if err := m.LinkAccount(ctx, u.ID, acc); err != nil {
		t.Fatalf("LinkAccount err: %v", err)
	}

	// re-login: mismos (provider, account id), tokens rotados
	acc2 := *acc
	acc2.Tokens.AccessToken = "tok-2"
	if err := m.LinkAccount(ctx, u.ID, &acc2); err != nil {
		t.Fatalf("LinkAccount err: %v", err)
	}

	accounts := m.Accounts(u.ID)
	if len(accounts) != 1 {
		t.Fatalf("want 1 account, got %d", len(accounts))
	}
	if accounts[0].Tokens.AccessToken != "tok-2" {
		t.Fatalf("tokens not rotated: %q", accounts[0].Tokens.AccessToken)
	}
}

func TestLinkAccount_UnknownUser(t *testing.T) {
	t.Parallel()
	m := memory.New()

	err := m.LinkAccount(context.Background(), "ghost", &flow.Account{Provider: "p", ProviderAccountID: "1"})
	if err != store.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := memory.New()

	if _, err := m.GetUserByEmail(ctx, "nobody@x.y"); err != store.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := m.UpsertUser(ctx, &flow.User{ID: "u1", Email: "a@b.c"}); err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}
	u, err := m.GetUserByEmail(ctx, "A@B.C")
	if err != nil {
		t.Fatalf("GetUserByEmail err: %v", err)
	}
	if u.ID != "u1" {
		t.Fatalf("got %q", u.ID)
	}
}
