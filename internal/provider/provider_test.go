package provider

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		ID:       "acme",
		Name:     "Acme",
		Type:     TypeOIDC,
		ClientID: "cid",
		Endpoints: Endpoints{
			Issuer: "https://idp.acme.test",
		},
		Checks: []Check{CheckState, CheckPKCE, CheckNonce},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate err: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty id", func(c *Config) { c.ID = "  " }, "id required"},
		{"bad type", func(c *Config) { c.Type = "saml" }, "unknown type"},
		{"no client id", func(c *Config) { c.ClientID = "" }, "client_id required"},
		{"no issuer", func(c *Config) { c.Endpoints.Issuer = "" }, "issuer required"},
		{"explicit without token_url", func(c *Config) {
			c.Endpoints.Explicit = true
			c.Endpoints.TokenURL = ""
		}, "token_url"},
		{"unknown check", func(c *Config) { c.Checks = []Check{"csrf"} }, "unknown check"},
		{"nonce on oauth2", func(c *Config) {
			c.Type = TypeOAuth2
			c.Checks = []Check{CheckNonce}
		}, "nonce check requires oidc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestCheckEnabled(t *testing.T) {
	t.Parallel()
	cfg := &Config{Checks: []Check{CheckState}}
	if !cfg.CheckEnabled(CheckState) {
		t.Fatalf("state should be enabled")
	}
	if cfg.CheckEnabled(CheckPKCE) {
		t.Fatalf("pkce should be disabled")
	}
}

func TestDefaultProfile_OIDCClaims(t *testing.T) {
	t.Parallel()
	u, err := DefaultProfile(Profile{
		"sub":     "abc",
		"name":    "Ada",
		"email":   "ada@example.com",
		"picture": "https://img",
	}, TokenSet{})
	if err != nil {
		t.Fatalf("DefaultProfile err: %v", err)
	}
	if u.ID != "abc" || u.Name != "Ada" || u.Email != "ada@example.com" || u.Image != "https://img" {
		t.Fatalf("unexpected mapping: %+v", u)
	}
}

func TestDefaultProfile_OAuth2Fallbacks(t *testing.T) {
	t.Parallel()
	// GitHub-shaped payload: numeric id, login, avatar_url
	u, err := DefaultProfile(Profile{
		"id":         float64(5800),
		"login":      "octo",
		"avatar_url": "https://avatars/5800",
	}, TokenSet{})
	if err != nil {
		t.Fatalf("DefaultProfile err: %v", err)
	}
	if u.ID != "5800" {
		t.Fatalf("numeric id not stringified: %q", u.ID)
	}
	if u.Name != "octo" || u.Image != "https://avatars/5800" {
		t.Fatalf("unexpected mapping: %+v", u)
	}
}

func TestRegistry_PresetAndLookup(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.RegisterPreset("acme", func(s Settings) (*Config, error) {
		c := validConfig()
		c.ClientID = s.ClientID
		return c, nil
	})

	if err := reg.AddFromPreset("acme", Settings{ClientID: "k"}); err != nil {
		t.Fatalf("AddFromPreset err: %v", err)
	}
	got, ok := reg.Get("acme")
	if !ok || got.ClientID != "k" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if err := reg.Add(validConfig()); err == nil {
		t.Fatalf("duplicate id accepted")
	}
	if ids := reg.IDs(); len(ids) != 1 || ids[0] != "acme" {
		t.Fatalf("IDs = %v", ids)
	}
}
