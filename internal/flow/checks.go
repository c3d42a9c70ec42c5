package flow

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/dropDatabas3/signon/internal/cache"
	"github.com/dropDatabas3/signon/internal/metrics"
	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
	tokens "github.com/dropDatabas3/signon/internal/security/token"
)

const (
	checkTTL       = 15 * time.Minute
	checkValueSize = 32 // bytes of entropy per check value

	// cookiePrefix + provider id + check name, e.g. "signon.google.state".
	cookiePrefix = "signon."
)

// CheckStore issues and consumes single-use anti-forgery values (state, PKCE
// verifier, nonce) bound to an in-flight authorization.
//
// A value lives in two places: the browser cookie carries it, and the cache
// holds it under a key derived from its hash. Use removes the cache entry with
// an atomic take, so a given value is consumable exactly once even under
// concurrent callbacks replaying the same cookies.
type CheckStore struct {
	cache    cache.Cache
	ttl      time.Duration
	secure   bool
	generate func(nBytes int) (string, error)
}

// CheckStoreDeps contains dependencies for the check store.
type CheckStoreDeps struct {
	Cache  cache.Cache
	TTL    time.Duration              // default 15m
	Secure bool                       // set Secure on issued cookies
	Random func(int) (string, error)  // default: crypto/rand opaque tokens
}

// NewCheckStore creates a CheckStore.
func NewCheckStore(d CheckStoreDeps) *CheckStore {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = checkTTL
	}
	gen := d.Random
	if gen == nil {
		gen = tokens.GenerateOpaqueToken
	}
	return &CheckStore{cache: d.Cache, ttl: ttl, secure: d.Secure, generate: gen}
}

// CookieName returns the cookie carrying a check value for a provider.
func CookieName(providerID string, c provider.Check) string {
	return cookiePrefix + providerID + "." + string(c)
}

func checkKey(providerID string, c provider.Check, value string) string {
	// Keyed by hash: the cache never sees the raw value.
	return "check:" + providerID + ":" + string(c) + ":" + tokens.SHA256Base64URL(value)
}

// Issue generates a fresh check value, records it for single-use consumption,
// and returns the cookie that round-trips it through the redirect.
func (s *CheckStore) Issue(ctx context.Context, p *provider.Config, c provider.Check) (string, *http.Cookie, error) {
	value, err := s.generate(checkValueSize)
	if err != nil {
		return "", nil, err
	}
	if err := s.cache.Set(ctx, checkKey(p.ID, c, value), []byte(value), s.ttl); err != nil {
		return "", nil, err
	}

	ck := &http.Cookie{
		Name:     CookieName(p.ID, c),
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	return value, ck, nil
}

// Use consumes the recorded value for a check. The value is taken from the
// request cookies, matched against the cache entry, and invalidated in the
// same operation. A clearing cookie is appended to out regardless of outcome,
// so a failed callback cannot be replayed with the same cookie either.
//
// Returns ok=false when the cookie is absent, the recorded value expired, or
// it was already consumed.
func (s *CheckStore) Use(ctx context.Context, p *provider.Config, c provider.Check, cookies map[string]string, out *[]*http.Cookie) (string, bool) {
	log := logger.From(ctx).With(logger.Component("flow.checks"), logger.Check(string(c)))

	name := CookieName(p.ID, c)
	raw, present := cookies[name]
	if !present || raw == "" {
		log.Debug("check cookie absent", logger.Provider(p.ID))
		metrics.ChecksRejected.WithLabelValues(string(c)).Inc()
		return "", false
	}

	*out = append(*out, clearCookie(name, s.secure))

	stored, ok := s.cache.Take(ctx, checkKey(p.ID, c, raw))
	if !ok {
		log.Debug("check value expired or already consumed", logger.Provider(p.ID))
		metrics.ChecksRejected.WithLabelValues(string(c)).Inc()
		return "", false
	}
	if subtle.ConstantTimeCompare(stored, []byte(raw)) != 1 {
		log.Warn("check value mismatch", logger.Provider(p.ID))
		metrics.ChecksRejected.WithLabelValues(string(c)).Inc()
		return "", false
	}
	return raw, true
}

// PKCEChallenge derives the S256 code challenge for a verifier.
func PKCEChallenge(verifier string) string {
	return tokens.SHA256Base64URL(verifier)
}

func clearCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
