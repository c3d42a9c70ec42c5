package flow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
)

// resolveProfile obtains the raw end-user profile.
//
// OIDC providers already have validated ID-token claims from the exchange; no
// extra request is made. OAuth2 providers use the userinfo hook when present
// (tolerating nil results), else the standard userinfo request.
func (h *Handler) resolveProfile(ctx context.Context, p *provider.Config, md *Metadata, out *exchangeOutcome) (provider.Profile, error) {
	log := logger.From(ctx).With(logger.Component("flow.profile"), logger.Provider(p.ID))

	if p.Type == provider.TypeOIDC {
		return out.Claims, nil
	}

	if p.Hooks.Userinfo != nil {
		prof, err := p.Hooks.Userinfo(ctx, provider.UserinfoInput{Provider: p, Tokens: out.Tokens})
		if err != nil {
			return nil, &Error{Kind: KindProfileResolution, Provider: p.ID, ProviderType: p.Type, Msg: "userinfo hook failed", Err: err}
		}
		if prof == nil {
			// Some providers return null/empty bodies; an empty profile is
			// preferable to failing the whole flow.
			log.Debug("userinfo hook returned no profile, substituting empty")
			prof = provider.Profile{}
		}
		return prof, nil
	}

	if md.UserinfoURL != "" {
		return h.userinfoRequest(ctx, p, md.UserinfoURL, out.Tokens.AccessToken)
	}

	return nil, configErr(p, "no userinfo endpoint configured")
}

// userinfoRequest performs the standard bearer-token userinfo request.
func (h *Handler) userinfoRequest(ctx context.Context, p *provider.Config, url, accessToken string) (provider.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindProfileResolution, Provider: p.ID, ProviderType: p.Type, Msg: "build userinfo request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindProfileResolution, Provider: p.ID, ProviderType: p.Type, Msg: "userinfo request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindProfileResolution, Provider: p.ID, ProviderType: p.Type, Msg: "read userinfo response", Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return nil, &Error{
			Kind: KindProfileResolution, Provider: p.ID, ProviderType: p.Type,
			Msg:     "userinfo endpoint returned non-2xx status",
			Payload: map[string]any{"status": resp.StatusCode, "body": string(body)},
		}
	}

	var prof provider.Profile
	if err := json.Unmarshal(body, &prof); err != nil {
		return nil, &Error{
			Kind: KindProfileResolution, Provider: p.ID, ProviderType: p.Type,
			Msg: "malformed userinfo response", Payload: map[string]any{"body": string(body)}, Err: err,
		}
	}
	return prof, nil
}
