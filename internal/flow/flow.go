// Package flow implements the authorization-code callback pipeline:
// endpoint resolution, anti-forgery validation, the code-for-tokens exchange,
// profile resolution, and assembly of the normalized (User, Account) pair.
//
// One Handler serves any number of concurrent callbacks; all per-flow state
// lives in arguments and return values. Stages run strictly in order and any
// fatal error aborts the remainder of the pipeline. Nothing is retried here:
// retry policy belongs to the injected HTTP client, if anywhere.
package flow

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
	"github.com/google/uuid"
)

// CallbackRequest carries the redirect's query parameters and request cookies.
// Read-only input; never mutated.
type CallbackRequest struct {
	Query   url.Values
	Cookies map[string]string
}

// User is the normalized identity produced by a successful flow.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// Account links a User to a provider, embedding the token set.
type Account struct {
	Provider          string            `json:"provider"`
	Type              string            `json:"type"`
	ProviderAccountID string            `json:"providerAccountId"`
	Tokens            provider.TokenSet `json:"-"`
}

// CallbackResult is the outcome of one callback invocation.
//
// User and Account are nil when the profile-mapping step failed: callers must
// treat that as "redirect to a recoverable error page", not a hard failure.
// Cookies is the ordered list to set on the outgoing response; it is also
// populated (clearing cookies) on the partial result returned with an error.
type CallbackResult struct {
	User    *User
	Account *Account
	Profile provider.Profile
	Cookies []*http.Cookie
}

// Handler orchestrates the callback pipeline.
type Handler struct {
	checks   *CheckStore
	resolver *Resolver
	httpc    *http.Client
	jwks     *jwksCache
	newID    func() string
	now      func() time.Time
}

// Deps contains dependencies for the Handler.
type Deps struct {
	Checks   *CheckStore
	Resolver *Resolver
	HTTP     *http.Client     // outbound transport for token/userinfo/JWKS requests
	NewID    func() string    // identifier generator, default uuid.NewString
	Now      func() time.Time // clock, default time.Now
}

// New creates a Handler.
func New(d Deps) *Handler {
	httpc := d.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		checks:   d.Checks,
		resolver: d.Resolver,
		httpc:    httpc,
		jwks:     newJWKSCache(httpc),
		newID:    newID,
		now:      now,
	}
}

// Callback processes one authorization-code redirect.
//
// redirectURI is the URL the callback arrived at (the registered redirect_uri
// for this handler). On a fatal error the returned result is non-nil when
// check cookies were already consumed, so the caller can still clear them.
func (h *Handler) Callback(ctx context.Context, p *provider.Config, req CallbackRequest, redirectURI string) (*CallbackResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("flow"),
		logger.Provider(p.ID),
		logger.ProviderType(string(p.Type)),
	)

	md, err := h.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	res := &CallbackResult{}

	code, err := h.validateCallback(ctx, p, req, &res.Cookies)
	if err != nil {
		return res, err
	}

	out, err := h.exchange(ctx, p, md, code, req, redirectURI, &res.Cookies)
	if err != nil {
		return res, err
	}

	prof, err := h.resolveProfile(ctx, p, md, out)
	if err != nil {
		return res, err
	}
	res.Profile = prof

	res.User, res.Account = h.assemble(ctx, p, prof, out.Tokens)

	log.Debug("callback completed",
		logger.Bool("user_mapped", res.User != nil),
	)
	return res, nil
}
