package flow

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/signon/internal/provider"
)

// Kind classifies a flow failure. Every kind except KindProfileParse is fatal:
// it aborts the pipeline and propagates to the caller. None is retried.
type Kind string

const (
	// KindConfiguration: provider metadata insufficient for the flow.
	KindConfiguration Kind = "configuration_error"

	// KindCallback: the identity provider returned an error in the redirect
	// (user denial, provider-side failure) or the redirect is malformed.
	KindCallback Kind = "oauth_callback_error"

	// KindTokenExchange: grant request failed, returned a provider-level
	// error body, or presented an unhandled authentication challenge.
	KindTokenExchange Kind = "token_exchange_error"

	// KindTokenRequest: a custom token-request hook returned no token set.
	KindTokenRequest Kind = "token_request_error"

	// KindProfileResolution: no usable means to obtain a profile.
	KindProfileResolution Kind = "profile_resolution_error"

	// KindProfileParse: the application profile mapping failed. Non-fatal:
	// logged, the flow completes without user/account.
	KindProfileParse Kind = "profile_parse_error"
)

// Error is a typed flow failure. It keeps the provider id and, for callback
// and token errors, the raw provider payload, so a failure can be diagnosed
// without re-running the flow.
type Error struct {
	Kind         Kind
	Provider     string
	ProviderType provider.Type  // tag for token-exchange diagnostics
	Msg          string
	Payload      map[string]any // raw provider-returned payload, if any
	Err          error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: provider=%s: %s", e.Kind, e.Provider, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a flow Error of the given kind.
func IsKind(err error, k Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == k
	}
	return false
}

func configErr(p *provider.Config, msg string) *Error {
	return &Error{Kind: KindConfiguration, Provider: p.ID, ProviderType: p.Type, Msg: msg}
}

func callbackErr(p *provider.Config, msg string, payload map[string]any) *Error {
	return &Error{Kind: KindCallback, Provider: p.ID, ProviderType: p.Type, Msg: msg, Payload: payload}
}

func exchangeErr(p *provider.Config, msg string, payload map[string]any, cause error) *Error {
	return &Error{Kind: KindTokenExchange, Provider: p.ID, ProviderType: p.Type, Msg: msg, Payload: payload, Err: cause}
}
