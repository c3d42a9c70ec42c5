// Package google provides the Google OIDC provider preset.
//
// Google is configured with its issuer only: token and userinfo endpoints are
// resolved through well-known discovery at callback time.
package google

import (
	"github.com/dropDatabas3/signon/internal/provider"
)

const (
	PresetName = "google"

	issuer = "https://accounts.google.com"
)

// Preset builds a Google OIDC provider config.
func Preset(s provider.Settings) (*provider.Config, error) {
	id := s.ID
	if id == "" {
		id = PresetName
	}
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	checks := s.Checks
	if len(checks) == 0 {
		checks = []provider.Check{provider.CheckState, provider.CheckPKCE, provider.CheckNonce}
	}
	return &provider.Config{
		ID:           id,
		Name:         "Google",
		Type:         provider.TypeOIDC,
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Scopes:       scopes,
		Checks:       checks,
		Endpoints: provider.Endpoints{
			Issuer: issuer,
		},
		RedirectProxyURL: s.RedirectProxyURL,
	}, nil
}
