package flow

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
)

// StartResult is the outcome of building an authorization redirect.
type StartResult struct {
	RedirectURL string
	Cookies     []*http.Cookie
}

// Start builds the authorization request URL and issues the anti-forgery
// checks the provider has enabled. The companion to Callback: values issued
// here are the ones Callback later consumes.
func (h *Handler) Start(ctx context.Context, p *provider.Config, redirectURI string) (*StartResult, error) {
	log := logger.From(ctx).With(logger.Layer("flow"), logger.Op("Start"), logger.Provider(p.ID))

	md, err := h.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if md.AuthorizationURL == "" {
		return nil, configErr(p, "missing authorization endpoint")
	}

	u, err := url.Parse(md.AuthorizationURL)
	if err != nil {
		return nil, configErr(p, "invalid authorization endpoint: "+err.Error())
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", effectiveRedirectURI(p, redirectURI))
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}

	res := &StartResult{}

	if p.CheckEnabled(provider.CheckState) {
		v, ck, err := h.checks.Issue(ctx, p, provider.CheckState)
		if err != nil {
			return nil, err
		}
		q.Set("state", v)
		res.Cookies = append(res.Cookies, ck)
	}
	if p.CheckEnabled(provider.CheckPKCE) {
		v, ck, err := h.checks.Issue(ctx, p, provider.CheckPKCE)
		if err != nil {
			return nil, err
		}
		q.Set("code_challenge", PKCEChallenge(v))
		q.Set("code_challenge_method", "S256")
		res.Cookies = append(res.Cookies, ck)
	}
	if p.CheckEnabled(provider.CheckNonce) {
		v, ck, err := h.checks.Issue(ctx, p, provider.CheckNonce)
		if err != nil {
			return nil, err
		}
		q.Set("nonce", v)
		res.Cookies = append(res.Cookies, ck)
	}

	u.RawQuery = q.Encode()
	res.RedirectURL = u.String()

	log.Debug("authorization redirect built", logger.Int("checks", len(res.Cookies)))
	return res, nil
}
