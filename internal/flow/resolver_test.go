package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/signon/internal/cache/memory"
	"github.com/dropDatabas3/signon/internal/provider"
)

func discoveryServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_Discovery(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := discoveryServer(t, &hits)

	r := NewResolver(ResolverDeps{HTTP: srv.Client(), Cache: memory.New(time.Minute)})
	p := testProvider()
	p.Endpoints.Issuer = srv.URL

	md, err := r.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if md.TokenURL != srv.URL+"/token" || md.JWKSURL != srv.URL+"/jwks" {
		t.Fatalf("unexpected metadata: %+v", md)
	}

	// second resolve should come from cache
	if _, err := r.Resolve(context.Background(), p); err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("discovery fetched %d times, want 1", n)
	}
}

func TestResolve_ExplicitSkipsDiscovery(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := discoveryServer(t, &hits)

	r := NewResolver(ResolverDeps{HTTP: srv.Client()})
	p := testProvider()
	p.Type = provider.TypeOAuth2
	p.Checks = []provider.Check{provider.CheckState}
	p.Endpoints = provider.Endpoints{
		AuthorizationURL: srv.URL + "/authorize",
		TokenURL:         srv.URL + "/token",
		UserinfoURL:      srv.URL + "/userinfo",
		Explicit:         true,
	}

	md, err := r.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if md.TokenURL != srv.URL+"/token" {
		t.Fatalf("unexpected metadata: %+v", md)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("explicit endpoints still hit discovery")
	}
}

func TestResolve_MissingTokenEndpoint(t *testing.T) {
	t.Parallel()
	r := NewResolver(ResolverDeps{})
	p := testProvider()
	p.Endpoints = provider.Endpoints{
		AuthorizationURL: "https://idp/authorize",
		Explicit:         true,
	}

	_, err := r.Resolve(context.Background(), p)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestResolve_OAuth2NeedsUserinfo(t *testing.T) {
	t.Parallel()
	r := NewResolver(ResolverDeps{})
	p := testProvider()
	p.Type = provider.TypeOAuth2
	p.Checks = []provider.Check{provider.CheckState}
	p.Endpoints = provider.Endpoints{
		TokenURL: "https://idp/token",
		Explicit: true,
	}

	if _, err := r.Resolve(context.Background(), p); !IsKind(err, KindConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}

	// a userinfo hook lifts the requirement
	p.Hooks.Userinfo = func(context.Context, provider.UserinfoInput) (provider.Profile, error) {
		return provider.Profile{}, nil
	}
	if _, err := r.Resolve(context.Background(), p); err != nil {
		t.Fatalf("Resolve err with hook: %v", err)
	}
}

func TestResolve_AuthorizationURLOverride(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := discoveryServer(t, &hits)

	r := NewResolver(ResolverDeps{HTTP: srv.Client()})
	p := testProvider()
	p.Endpoints.Issuer = srv.URL
	p.Endpoints.AuthorizationURL = "https://override/authorize"

	md, err := r.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if md.AuthorizationURL != "https://override/authorize" {
		t.Fatalf("override ignored: %q", md.AuthorizationURL)
	}
}
