package config

import (
	"fmt"

	"github.com/dropDatabas3/signon/internal/provider"
	"github.com/dropDatabas3/signon/internal/provider/github"
	"github.com/dropDatabas3/signon/internal/provider/google"
)

// BuildRegistry turns the providers section into a live registry. Preset
// entries go through the preset factory; custom entries are assembled from
// the explicit fields and validated the same way.
func BuildRegistry(c *Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	reg.RegisterPreset("google", google.Preset)
	reg.RegisterPreset("github", github.Preset)

	for i := range c.Providers {
		pc := &c.Providers[i]

		if pc.Preset != "" {
			err := reg.AddFromPreset(pc.Preset, provider.Settings{
				ID:               pc.ID,
				ClientID:         pc.ClientID,
				ClientSecret:     pc.ClientSecret,
				Scopes:           pc.Scopes,
				Checks:           toChecks(pc.Checks),
				RedirectProxyURL: pc.RedirectProxyURL,
			})
			if err != nil {
				return nil, fmt.Errorf("config: provider %q: %w", pc.ID, err)
			}
			continue
		}

		cfg := &provider.Config{
			ID:           pc.ID,
			Name:         pc.ID,
			Type:         provider.Type(pc.Type),
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			Scopes:       pc.Scopes,
			Checks:       toChecks(pc.Checks),
			Endpoints: provider.Endpoints{
				Issuer:           pc.Issuer,
				AuthorizationURL: pc.AuthorizationURL,
				TokenURL:         pc.TokenURL,
				UserinfoURL:      pc.UserinfoURL,
				Explicit:         pc.ExplicitEndpoint,
			},
			RedirectProxyURL: pc.RedirectProxyURL,
		}
		if len(cfg.Checks) == 0 {
			cfg.Checks = []provider.Check{provider.CheckState}
		}
		if err := reg.Add(cfg); err != nil {
			return nil, fmt.Errorf("config: provider %q: %w", pc.ID, err)
		}
	}
	return reg, nil
}

func toChecks(ss []string) []provider.Check {
	out := make([]provider.Check, 0, len(ss))
	for _, s := range ss {
		out = append(out, provider.Check(s))
	}
	return out
}
