package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
)

const (
	// noPKCEVerifier stands in when the pkce check is disabled. It is never
	// transmitted: the code_verifier parameter is stripped from the request
	// body before the grant request goes out.
	noPKCEVerifier = "unused"

	// noNonceExpected marks that no nonce claim binding should be performed.
	noNonceExpected = "-"
)

// exchangeOutcome carries the parsed token set and, for OIDC, the validated
// ID-token claims.
type exchangeOutcome struct {
	Tokens provider.TokenSet
	Claims provider.Profile
}

// tokenResponse is the standard token endpoint response body (RFC 6749 §5).
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorURI         string `json:"error_uri"`
}

// exchange performs the authorization-code grant.
func (h *Handler) exchange(ctx context.Context, p *provider.Config, md *Metadata, code string, req CallbackRequest, redirectURI string, cookies *[]*http.Cookie) (*exchangeOutcome, error) {
	log := logger.From(ctx).With(logger.Component("flow.exchange"), logger.Provider(p.ID))

	verifier := noPKCEVerifier
	if p.CheckEnabled(provider.CheckPKCE) {
		v, ok := h.checks.Use(ctx, p, provider.CheckPKCE, req.Cookies, cookies)
		if !ok {
			return nil, exchangeErr(p, "pkce check failed: no recorded verifier", nil, nil)
		}
		verifier = v
	}

	nonce := noNonceExpected
	if p.Type == provider.TypeOIDC && p.CheckEnabled(provider.CheckNonce) {
		v, ok := h.checks.Use(ctx, p, provider.CheckNonce, req.Cookies, cookies)
		if !ok {
			return nil, exchangeErr(p, "nonce check failed: no recorded nonce", nil, nil)
		}
		nonce = v
	}

	effectiveRedirect := effectiveRedirectURI(p, redirectURI)

	var tr tokenResponse
	if p.Hooks.TokenRequest != nil {
		ts, err := p.Hooks.TokenRequest(ctx, provider.TokenRequestInput{
			Provider: p,
			Params:   req.Query,
			Checks: map[provider.Check]string{
				provider.CheckState: req.Query.Get("state"),
				provider.CheckPKCE:  verifier,
				provider.CheckNonce: nonce,
			},
			RedirectURI: effectiveRedirect,
		})
		if err != nil {
			return nil, &Error{Kind: KindTokenRequest, Provider: p.ID, ProviderType: p.Type, Msg: "token request hook failed", Err: err}
		}
		if ts == nil || ts.AccessToken == "" {
			return nil, &Error{Kind: KindTokenRequest, Provider: p.ID, ProviderType: p.Type, Msg: "token request hook returned no token set"}
		}
		tr = tokenResponse{
			AccessToken:  ts.AccessToken,
			TokenType:    ts.TokenType,
			RefreshToken: ts.RefreshToken,
			IDToken:      ts.IDToken,
			Scope:        ts.Scope,
		}
		if !ts.ExpiresAt.IsZero() {
			tr.ExpiresIn = int64(time.Until(ts.ExpiresAt).Seconds())
		}
	} else {
		var err error
		tr, err = h.grantRequest(ctx, p, md, code, verifier, effectiveRedirect)
		if err != nil {
			return nil, err
		}
	}

	if tr.Error != "" {
		payload := map[string]any{"error": tr.Error}
		if tr.ErrorDescription != "" {
			payload["error_description"] = tr.ErrorDescription
		}
		if tr.ErrorURI != "" {
			payload["error_uri"] = tr.ErrorURI
		}
		return nil, exchangeErr(p, "token endpoint returned error: "+tr.Error, payload, nil)
	}
	if tr.AccessToken == "" && tr.IDToken == "" {
		return nil, exchangeErr(p, "token response contains no tokens", nil, nil)
	}

	out := &exchangeOutcome{
		Tokens: provider.TokenSet{
			AccessToken:  tr.AccessToken,
			TokenType:    tr.TokenType,
			RefreshToken: tr.RefreshToken,
			IDToken:      tr.IDToken,
			Scope:        tr.Scope,
		},
	}
	// expires_at is anchored to the wall clock at parse time, in whole seconds.
	if tr.ExpiresIn > 0 {
		out.Tokens.ExpiresAt = h.now().Add(time.Duration(tr.ExpiresIn) * time.Second).Truncate(time.Second)
	}

	if p.Type == provider.TypeOIDC {
		if tr.IDToken == "" {
			return nil, exchangeErr(p, "token response missing id_token", nil, nil)
		}
		claims, err := h.validateIDToken(ctx, p, md, tr.IDToken, nonce)
		if err != nil {
			return nil, exchangeErr(p, "id_token validation failed", nil, err)
		}
		out.Claims = claims
	}

	log.Debug("code exchanged",
		logger.Bool("refresh_token", out.Tokens.RefreshToken != ""),
		logger.Bool("id_token", out.Tokens.IDToken != ""),
	)
	return out, nil
}

// grantRequest performs the standard authorization-code grant POST.
func (h *Handler) grantRequest(ctx context.Context, p *provider.Config, md *Metadata, code, verifier, redirectURI string) (tokenResponse, error) {
	var zero tokenResponse

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("code_verifier", verifier)
	if !p.CheckEnabled(provider.CheckPKCE) {
		// Never send a verifier for a flow that didn't advertise PKCE.
		form.Del("code_verifier")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, md.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return zero, exchangeErr(p, "build grant request", nil, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpc.Do(req)
	if err != nil {
		return zero, exchangeErr(p, "grant request failed", nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, exchangeErr(p, "read grant response", nil, err)
	}

	if p.Hooks.ConformTokenResponse != nil {
		// The hook gets a duplicate of the raw response; the original bytes
		// survive for diagnostics if conforming fails.
		conformed, err := p.Hooks.ConformTokenResponse(cloneResponse(resp, body))
		if err != nil {
			return zero, exchangeErr(p, "conform hook failed", map[string]any{"body": string(body)}, err)
		}
		if conformed != nil {
			resp = conformed
			body, err = io.ReadAll(conformed.Body)
			conformed.Body.Close()
			if err != nil {
				return zero, exchangeErr(p, "read conformed response", nil, err)
			}
		}
	}

	// An authentication challenge from the token endpoint is a server-side
	// demand this flow has no answer for. Deliberately fatal, never a
	// silent pass-through.
	if ch := resp.Header.Get("WWW-Authenticate"); ch != "" {
		return zero, exchangeErr(p, "unhandled WWW-Authenticate challenge", map[string]any{"challenge": ch}, nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return zero, exchangeErr(p, "malformed token response", map[string]any{"body": string(body)}, err)
	}
	if tr.Error == "" && resp.StatusCode/100 != 2 {
		return zero, exchangeErr(p, "token endpoint returned non-2xx status", map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		}, nil)
	}
	return tr, nil
}

// effectiveRedirectURI applies the redirect-proxy indirection: the proxy URL
// is what the authorization server saw, unless the callback already arrived
// at the proxy itself.
func effectiveRedirectURI(p *provider.Config, redirectURI string) string {
	if p.RedirectProxyURL != "" && !strings.HasPrefix(redirectURI, p.RedirectProxyURL) {
		return p.RedirectProxyURL
	}
	return redirectURI
}

func cloneResponse(resp *http.Response, body []byte) *http.Response {
	return &http.Response{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
