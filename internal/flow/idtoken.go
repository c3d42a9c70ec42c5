package flow

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/signon/internal/provider"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	jwksTTL   = time.Hour
	expLeeway = 30 * time.Second
)

// validateIDToken validates the ID token's claims, including nonce binding.
//
// When the server metadata carries a JWKS URL the token signature is verified
// against the issuer's RSA keys. Without one (explicit endpoints, no issuer)
// the claims are still validated but the signature is not; see DESIGN.md.
func (h *Handler) validateIDToken(ctx context.Context, p *provider.Config, md *Metadata, raw, expectedNonce string) (provider.Profile, error) {
	var claims jwtv5.MapClaims

	if md.JWKSURL != "" {
		tok, err := jwtv5.Parse(raw, func(t *jwtv5.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return h.jwks.keyFor(ctx, md.JWKSURL, kid)
		}, jwtv5.WithValidMethods([]string{"RS256"}), jwtv5.WithLeeway(expLeeway))
		if err != nil || !tok.Valid {
			return nil, fmt.Errorf("invalid id_token: %w", err)
		}
		var ok bool
		claims, ok = tok.Claims.(jwtv5.MapClaims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
	} else {
		tok, _, err := jwtv5.NewParser().ParseUnverified(raw, jwtv5.MapClaims{})
		if err != nil {
			return nil, fmt.Errorf("parse id_token: %w", err)
		}
		claims = tok.Claims.(jwtv5.MapClaims)
		if expf, ok := claims["exp"].(float64); ok {
			if time.Unix(int64(expf), 0).Before(h.now().Add(-expLeeway)) {
				return nil, errors.New("id_token expired")
			}
		}
	}

	if md.Issuer != "" {
		iss, _ := claims["iss"].(string)
		if !issuerMatches(iss, md.Issuer) {
			return nil, fmt.Errorf("bad iss: %s", iss)
		}
	}

	if !audContains(claims["aud"], p.ClientID) {
		return nil, errors.New("bad aud")
	}

	if expectedNonce != noNonceExpected {
		got, _ := claims["nonce"].(string)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expectedNonce)) != 1 {
			return nil, errors.New("bad nonce")
		}
	}

	return provider.Profile(claims), nil
}

func issuerMatches(got, want string) bool {
	return strings.TrimRight(got, "/") == strings.TrimRight(want, "/")
}

// audContains handles aud as string or array (OIDC Core §2).
func audContains(aud any, clientID string) bool {
	switch a := aud.(type) {
	case string:
		return a == clientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == clientID {
				return true
			}
		}
	}
	return false
}

// jwksCache fetches and caches the issuer's RSA keys, with ETag revalidation.
type jwksCache struct {
	httpc *http.Client

	mu      sync.RWMutex
	entries map[string]*jwksEntry // key: jwks URL
}

type jwksEntry struct {
	keys map[string]*rsa.PublicKey // key: kid
	at   time.Time
	etag string
}

type jwkDoc struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

func newJWKSCache(httpc *http.Client) *jwksCache {
	return &jwksCache{httpc: httpc, entries: make(map[string]*jwksEntry)}
}

func (c *jwksCache) keyFor(ctx context.Context, url, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	e := c.entries[url]
	c.mu.RUnlock()

	if e != nil && time.Since(e.at) < jwksTTL {
		if k, ok := e.keys[kid]; ok {
			return k, nil
		}
		// Unknown kid within the TTL usually means a rotation; refetch.
	}

	e, err := c.fetch(ctx, url, e)
	if err != nil {
		return nil, err
	}
	if k, ok := e.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("kid not found: %s", kid)
}

func (c *jwksCache) fetch(ctx context.Context, url string, prev *jwksEntry) (*jwksEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && prev != nil {
		c.mu.Lock()
		prev.at = time.Now()
		c.mu.Unlock()
		return prev, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}

	var doc jwkDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		pub, err := rsaKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	e := &jwksEntry{keys: keys, at: time.Now(), etag: resp.Header.Get("ETag")}
	c.mu.Lock()
	c.entries[url] = e
	c.mu.Unlock()
	return e, nil
}

func rsaKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 65537
	if len(eb) > 0 {
		e = 0
		for _, b := range eb {
			e = (e << 8) | int(b)
		}
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
