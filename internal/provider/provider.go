// Package provider defines the OAuth2/OIDC provider configuration model.
//
// Each provider is described by a Config: protocol type (oauth2 or oidc),
// client credentials, endpoints (explicit or discovered), the set of enabled
// anti-forgery checks, and an optional capability set of hooks for providers
// that deviate from the RFCs.
//
// Design Patterns:
//   - Strategy: hooks are optional strategies, each defaulting to the standard
//     implementation when absent.
//   - Factory: the Registry creates Config instances from presets.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Type indicates the authentication protocol.
type Type string

const (
	TypeOAuth2 Type = "oauth2"
	TypeOIDC   Type = "oidc"
)

// Check names an anti-forgery check a provider can enable.
type Check string

const (
	CheckState Check = "state"
	CheckPKCE  Check = "pkce"
	CheckNonce Check = "nonce"
)

// Endpoints describes where the authorization server lives.
//
// When Explicit is true both TokenURL and UserinfoURL were configured by hand
// and no discovery request is performed. Otherwise Issuer must be set and the
// endpoints are resolved from its well-known discovery document.
type Endpoints struct {
	Issuer           string
	AuthorizationURL string
	TokenURL         string
	UserinfoURL      string
	Explicit         bool
}

// TokenSet contains tokens received from the provider.
// ExpiresAt is absolute: normalized from expires_in when the response is parsed.
type TokenSet struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	Scope        string
	ExpiresAt    time.Time
}

// Profile is the raw profile payload: ID-token claims (OIDC) or the userinfo
// response body (OAuth2). Shape is provider-dependent.
type Profile map[string]any

// GetString returns a string-valued field, or "" when absent or not a string.
func (p Profile) GetString(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// MappedUser is the candidate user shape produced by a profile hook.
// The flow assigns the final user id; ID here is the provider-scoped id.
type MappedUser struct {
	ID    string
	Name  string
	Email string
	Image string
}

// TokenRequestInput is handed to a custom token-request hook.
type TokenRequestInput struct {
	Provider    *Config
	Params      url.Values       // raw callback query
	Checks      map[Check]string // consumed check values (state, pkce verifier, nonce)
	RedirectURI string
}

// UserinfoInput is handed to a custom userinfo hook.
type UserinfoInput struct {
	Provider *Config
	Tokens   TokenSet
}

// Hooks is the capability set for providers that deviate from RFC 6749.
// Every hook is optional; a nil hook means "use the standard implementation".
type Hooks struct {
	// TokenRequest replaces the whole authorization-code grant request.
	TokenRequest func(ctx context.Context, in TokenRequestInput) (*TokenSet, error)

	// ConformTokenResponse rewrites a copy of the raw token response before
	// parsing, for providers whose token endpoint bends the RFC.
	ConformTokenResponse func(resp *http.Response) (*http.Response, error)

	// Userinfo replaces the standard userinfo request (OAuth2 only).
	Userinfo func(ctx context.Context, in UserinfoInput) (Profile, error)

	// Profile maps the raw profile into the application user shape.
	Profile func(p Profile, t TokenSet) (*MappedUser, error)
}

// Config is the static description of a provider. Immutable during a flow.
type Config struct {
	ID           string
	Name         string
	Type         Type
	ClientID     string
	ClientSecret string
	Scopes       []string
	Endpoints    Endpoints
	Checks       []Check

	// RedirectProxyURL, when set, is used as redirect_uri in the token
	// exchange unless the callback already arrived at the proxy itself.
	// Lets a shared redirect endpoint forward to per-tenant handlers.
	RedirectProxyURL string

	Hooks Hooks
}

// CheckEnabled reports whether the given anti-forgery check is enabled.
func (c *Config) CheckEnabled(ch Check) bool {
	for _, v := range c.Checks {
		if v == ch {
			return true
		}
	}
	return false
}

// Validate checks the config for invalid combinations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("provider: id required")
	}
	if c.Type != TypeOAuth2 && c.Type != TypeOIDC {
		return fmt.Errorf("provider %s: unknown type %q", c.ID, c.Type)
	}
	if c.ClientID == "" {
		return fmt.Errorf("provider %s: client_id required", c.ID)
	}
	if !c.Endpoints.Explicit && c.Endpoints.Issuer == "" {
		return fmt.Errorf("provider %s: issuer required when endpoints are not explicit", c.ID)
	}
	if c.Endpoints.Explicit && c.Endpoints.TokenURL == "" {
		return fmt.Errorf("provider %s: explicit endpoints require token_url", c.ID)
	}
	for _, ch := range c.Checks {
		switch ch {
		case CheckState, CheckPKCE, CheckNonce:
		default:
			return fmt.Errorf("provider %s: unknown check %q", c.ID, ch)
		}
	}
	if c.Type == TypeOAuth2 && c.CheckEnabled(CheckNonce) {
		return fmt.Errorf("provider %s: nonce check requires oidc", c.ID)
	}
	return nil
}

// DefaultProfile is the standard profile mapping: OIDC standard claims with
// OAuth2-ish fallbacks (id/login/avatar_url) for plain OAuth2 providers.
func DefaultProfile(p Profile, _ TokenSet) (*MappedUser, error) {
	id := p.GetString("sub")
	if id == "" {
		id = p.GetString("id")
	}
	// Some providers (GitHub) return numeric ids.
	if id == "" {
		if f, ok := p["id"].(float64); ok {
			id = fmt.Sprintf("%.0f", f)
		}
	}
	name := p.GetString("name")
	if name == "" {
		name = p.GetString("login")
	}
	if name == "" {
		name = p.GetString("preferred_username")
	}
	image := p.GetString("picture")
	if image == "" {
		image = p.GetString("avatar_url")
	}
	return &MappedUser{
		ID:    id,
		Name:  name,
		Email: p.GetString("email"),
		Image: image,
	}, nil
}
