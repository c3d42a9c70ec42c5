package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/signon/internal/cache"
	"github.com/dropDatabas3/signon/internal/metrics"
	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
	"golang.org/x/sync/singleflight"
)

const discoveryTTL = 24 * time.Hour

// Metadata is the resolved authorization-server description.
// Read-only for the remainder of a flow.
type Metadata struct {
	Issuer           string `json:"issuer"`
	AuthorizationURL string `json:"authorization_endpoint"`
	TokenURL         string `json:"token_endpoint"`
	UserinfoURL      string `json:"userinfo_endpoint"`
	JWKSURL          string `json:"jwks_uri"`
}

// Resolver produces Metadata for a provider: directly from explicit endpoint
// configuration, or via well-known discovery against the issuer.
//
// Discovery documents are cached and concurrent fetches for the same issuer
// are collapsed with singleflight.
type Resolver struct {
	httpc *http.Client
	cache cache.Cache
	ttl   time.Duration
	sf    singleflight.Group
}

// ResolverDeps contains dependencies for the resolver.
type ResolverDeps struct {
	HTTP  *http.Client
	Cache cache.Cache   // optional; nil disables discovery caching
	TTL   time.Duration // discovery document TTL, default 24h
}

// NewResolver creates a Resolver.
func NewResolver(d ResolverDeps) *Resolver {
	httpc := d.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := d.TTL
	if ttl <= 0 {
		ttl = discoveryTTL
	}
	return &Resolver{httpc: httpc, cache: d.Cache, ttl: ttl}
}

// Resolve returns the authorization-server metadata for a provider.
//
// Explicit endpoints short-circuit discovery entirely. Otherwise the issuer's
// well-known document is fetched. Either way the result is validated against
// the provider's needs: a token endpoint is always required; a userinfo
// endpoint is required only for OAuth2 providers without a userinfo hook.
func (r *Resolver) Resolve(ctx context.Context, p *provider.Config) (*Metadata, error) {
	var md *Metadata
	if p.Endpoints.Explicit {
		md = &Metadata{
			Issuer:           p.Endpoints.Issuer,
			AuthorizationURL: p.Endpoints.AuthorizationURL,
			TokenURL:         p.Endpoints.TokenURL,
			UserinfoURL:      p.Endpoints.UserinfoURL,
		}
	} else {
		var err error
		md, err = r.discover(ctx, p.Endpoints.Issuer)
		if err != nil {
			return nil, configErr(p, fmt.Sprintf("discovery failed: %v", err))
		}
		// An explicitly configured authorization URL wins over discovery.
		if p.Endpoints.AuthorizationURL != "" {
			md.AuthorizationURL = p.Endpoints.AuthorizationURL
		}
	}

	if md.TokenURL == "" {
		return nil, configErr(p, "missing token endpoint")
	}
	if md.UserinfoURL == "" && p.Type == provider.TypeOAuth2 && p.Hooks.Userinfo == nil {
		return nil, configErr(p, "missing userinfo endpoint")
	}
	return md, nil
}

// discover fetches {issuer}/.well-known/openid-configuration.
func (r *Resolver) discover(ctx context.Context, issuer string) (*Metadata, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer required for discovery")
	}

	cacheKey := "discovery:" + issuer
	if r.cache != nil {
		if b, ok := r.cache.Get(ctx, cacheKey); ok {
			var md Metadata
			if err := json.Unmarshal(b, &md); err == nil {
				return &md, nil
			}
		}
	}

	v, err, _ := r.sf.Do(issuer, func() (any, error) {
		return r.fetchDiscovery(ctx, issuer, cacheKey)
	})
	if err != nil {
		return nil, err
	}
	md := v.(Metadata)
	return &md, nil
}

func (r *Resolver) fetchDiscovery(ctx context.Context, issuer, cacheKey string) (Metadata, error) {
	log := logger.From(ctx).With(logger.Component("flow.resolver"), logger.Issuer(issuer))
	metrics.DiscoveryRefreshes.Inc()

	url := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Metadata{}, fmt.Errorf("discovery http %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("decode discovery document: %w", err)
	}

	if r.cache != nil {
		if b, err := json.Marshal(md); err == nil {
			_ = r.cache.Set(ctx, cacheKey, b, r.ttl)
		}
	}

	log.Debug("discovery document fetched")
	return md, nil
}
