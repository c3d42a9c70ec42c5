// Package github provides the GitHub OAuth2 provider preset.
//
// GitHub does not implement OIDC: endpoints are static, the profile comes from
// the user API, and some accounts keep their email private, requiring a
// second request to /user/emails.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/signon/internal/provider"
	oauth2github "golang.org/x/oauth2/github"
)

const (
	PresetName = "github"

	userEndpoint  = "https://api.github.com/user"
	emailEndpoint = "https://api.github.com/user/emails"
)

// Preset builds a GitHub OAuth2 provider config.
func Preset(s provider.Settings) (*provider.Config, error) {
	id := s.ID
	if id == "" {
		id = PresetName
	}
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email", "read:user"}
	}
	checks := s.Checks
	if len(checks) == 0 {
		checks = []provider.Check{provider.CheckState}
	}

	httpc := &http.Client{Timeout: 10 * time.Second}

	return &provider.Config{
		ID:           id,
		Name:         "GitHub",
		Type:         provider.TypeOAuth2,
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Scopes:       scopes,
		Checks:       checks,
		Endpoints: provider.Endpoints{
			AuthorizationURL: oauth2github.Endpoint.AuthURL,
			TokenURL:         oauth2github.Endpoint.TokenURL,
			UserinfoURL:      userEndpoint,
			Explicit:         true,
		},
		RedirectProxyURL: s.RedirectProxyURL,
		Hooks: provider.Hooks{
			Userinfo: func(ctx context.Context, in provider.UserinfoInput) (provider.Profile, error) {
				return fetchProfile(ctx, httpc, in.Tokens.AccessToken)
			},
			Profile: mapProfile,
		},
	}, nil
}

// fetchProfile fetches /user and, when the email is private, the primary
// verified email from /user/emails.
func fetchProfile(ctx context.Context, httpc *http.Client, accessToken string) (provider.Profile, error) {
	prof, err := getJSON[provider.Profile](ctx, httpc, userEndpoint, accessToken)
	if err != nil {
		return nil, err
	}
	if prof.GetString("email") != "" {
		return prof, nil
	}

	emails, err := getJSON[[]emailInfo](ctx, httpc, emailEndpoint, accessToken)
	if err != nil {
		// Profile without email is still usable; the scope may not allow /user/emails.
		return prof, nil
	}
	if e := primaryEmail(emails); e != "" {
		prof["email"] = e
	}
	return prof, nil
}

type emailInfo struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func primaryEmail(emails []emailInfo) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

func getJSON[T any](ctx context.Context, httpc *http.Client, url, accessToken string) (T, error) {
	var out T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := httpc.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("github api error: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode github response: %w", err)
	}
	return out, nil
}

// mapProfile maps the GitHub user shape; ids are numeric, name may be empty.
func mapProfile(p provider.Profile, _ provider.TokenSet) (*provider.MappedUser, error) {
	id := ""
	switch v := p["id"].(type) {
	case float64:
		id = fmt.Sprintf("%.0f", v)
	case string:
		id = v
	}
	name := p.GetString("name")
	if name == "" {
		name = p.GetString("login")
	}
	return &provider.MappedUser{
		ID:    id,
		Name:  name,
		Email: p.GetString("email"),
		Image: p.GetString("avatar_url"),
	}, nil
}
