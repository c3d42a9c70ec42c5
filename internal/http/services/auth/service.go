// Package auth contains the service layer between the HTTP controllers and
// the flow engine: provider lookup, callback orchestration, persistence, and
// metrics.
package auth

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/signon/internal/flow"
)

// ProviderInfo is the public description of a configured provider.
type ProviderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// StartResult carries the redirect target plus the check cookies to set.
type StartResult struct {
	RedirectURL string
	Cookies     []*http.Cookie
}

// CallbackResult is the service-level outcome of a completed callback.
//
// User and Account are nil when profile mapping failed; Cookies always carries
// the clearing/issued cookies and must be applied to the response.
type CallbackResult struct {
	User    *flow.User    `json:"user,omitempty"`
	Account *flow.Account `json:"account,omitempty"`
	Cookies []*http.Cookie
}

// Service is the auth flow service consumed by the controllers.
type Service interface {
	Providers(ctx context.Context) []ProviderInfo
	Start(ctx context.Context, providerID string) (*StartResult, error)
	Callback(ctx context.Context, providerID string, req flow.CallbackRequest) (*CallbackResult, error)
}
