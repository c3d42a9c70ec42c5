package flow

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/signon/internal/cache/memory"
	"github.com/dropDatabas3/signon/internal/provider"
	tokens "github.com/dropDatabas3/signon/internal/security/token"
)

const testRedirectURI = "https://app.test/auth/acme/callback"

// fakeIDP is a scripted authorization server: discovery, JWKS, token and
// userinfo endpoints, with knobs for the failure-path tests.
type fakeIDP struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	// knobs
	expectVerifier   bool   // token endpoint requires a valid code_verifier
	rejectVerifier   bool   // fail if any code_verifier arrives at all
	nonce            string // embedded in the issued id_token
	wrongNonce       bool
	omitIDToken      bool
	tokenError       string // error field returned by the token endpoint
	challenge        string // WWW-Authenticate header on the token response
	expiresIn        int64
	lastTokenRequest url.Values
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	f := &fakeIDP{key: key, expiresIn: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 f.srv.URL,
			"authorization_endpoint": f.srv.URL + "/authorize",
			"token_endpoint":         f.srv.URL + "/token",
			"userinfo_endpoint":      f.srv.URL + "/userinfo",
			"jwks_uri":               f.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		pub := &f.key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   "AQAB",
			}},
		})
	})
	mux.HandleFunc("/token", f.tokenEndpoint)
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         float64(5800),
			"login":      "octo",
			"email":      "Octo@Example.com",
			"avatar_url": "https://avatars/5800",
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIDP) tokenEndpoint(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.lastTokenRequest = r.PostForm

	if f.challenge != "" {
		w.Header().Set("WWW-Authenticate", f.challenge)
	}
	w.Header().Set("Content-Type", "application/json")

	if f.tokenError != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             f.tokenError,
			"error_description": "scripted failure",
		})
		return
	}

	verifier := r.PostForm.Get("code_verifier")
	if f.rejectVerifier && verifier != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request"})
		return
	}
	if f.expectVerifier && verifier == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	body := map[string]any{
		"access_token": "at-123",
		"token_type":   "bearer",
		"expires_in":   f.expiresIn,
		"scope":        "openid email",
	}
	if !f.omitIDToken {
		nonce := f.nonce
		if f.wrongNonce {
			nonce = "not-the-one"
		}
		body["id_token"] = f.signIDToken(nonce)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeIDP) signIDToken(nonce string) string {
	claims := jwtv5.MapClaims{
		"iss":   f.srv.URL,
		"aud":   "cid",
		"sub":   "subject-1",
		"email": "Ada@Example.com",
		"name":  "Ada",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString(f.key)
	if err != nil {
		panic(err)
	}
	return s
}

func newTestHandler(f *fakeIDP, now func() time.Time) *Handler {
	cc := memory.New(time.Minute)
	return New(Deps{
		Checks:   NewCheckStore(CheckStoreDeps{Cache: cc}),
		Resolver: NewResolver(ResolverDeps{HTTP: f.srv.Client(), Cache: cc}),
		HTTP:     f.srv.Client(),
		NewID:    func() string { return "fixed-id" },
		Now:      now,
	})
}

func oidcProvider(f *fakeIDP) *provider.Config {
	p := testProvider()
	p.Endpoints.Issuer = f.srv.URL
	return p
}

func cookieMap(cs []*http.Cookie) map[string]string {
	m := make(map[string]string, len(cs))
	for _, c := range cs {
		m[c.Name] = c.Value
	}
	return m
}

// startFlow runs Start and returns the authorization query plus the cookies
// the browser would replay on the callback.
func startFlow(t *testing.T, h *Handler, p *provider.Config) (url.Values, map[string]string) {
	t.Helper()
	res, err := h.Start(context.Background(), p, testRedirectURI)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	u, err := url.Parse(res.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	return u.Query(), cookieMap(res.Cookies)
}

func TestCallback_OIDCHappyPath(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.expectVerifier = true

	fixed := time.Now()
	h := newTestHandler(f, func() time.Time { return fixed })
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)
	if q.Get("response_type") != "code" || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("authorization query incomplete: %v", q)
	}
	f.nonce = q.Get("nonce")

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	res, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if err != nil {
		t.Fatalf("Callback err: %v", err)
	}

	if res.User == nil || res.Account == nil {
		t.Fatalf("no user/account: %+v", res)
	}
	if res.User.ID != "fixed-id" {
		t.Fatalf("user id not generator-assigned: %q", res.User.ID)
	}
	if res.User.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.Account.ProviderAccountID != "subject-1" || res.Account.Type != "oidc" {
		t.Fatalf("unexpected account: %+v", res.Account)
	}

	// expires_in normalized against the injected clock, whole seconds
	want := fixed.Add(3600 * time.Second).Truncate(time.Second)
	if !res.Account.Tokens.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", res.Account.Tokens.ExpiresAt, want)
	}

	// the verifier sent must match the challenge advertised at Start
	sentVerifier := f.lastTokenRequest.Get("code_verifier")
	if tokens.SHA256Base64URL(sentVerifier) != q.Get("code_challenge") {
		t.Fatalf("verifier does not match advertised challenge")
	}

	// all three check cookies must come back as clearing cookies
	clearing := 0
	for _, c := range res.Cookies {
		if c.MaxAge == -1 {
			clearing++
		}
	}
	if clearing != 3 {
		t.Fatalf("want 3 clearing cookies, got %d", clearing)
	}
}

func TestCallback_OAuth2ExplicitEndpoints(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.rejectVerifier = true // PKCE disabled: a verifier leaking out is a bug
	f.omitIDToken = true

	h := newTestHandler(f, time.Now)
	p := &provider.Config{
		ID:       "acme",
		Name:     "Acme",
		Type:     provider.TypeOAuth2,
		ClientID: "cid",
		Checks:   []provider.Check{provider.CheckState},
		Endpoints: provider.Endpoints{
			AuthorizationURL: f.srv.URL + "/authorize",
			TokenURL:         f.srv.URL + "/token",
			UserinfoURL:      f.srv.URL + "/userinfo",
			Explicit:         true,
		},
	}

	q, cookies := startFlow(t, h, p)
	if q.Get("code_challenge") != "" {
		t.Fatalf("pkce disabled but challenge advertised")
	}

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	res, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if err != nil {
		t.Fatalf("Callback err: %v", err)
	}
	if _, sent := f.lastTokenRequest["code_verifier"]; sent {
		t.Fatalf("code_verifier transmitted for a non-PKCE flow")
	}
	if res.User == nil {
		t.Fatalf("no user mapped")
	}
	// userinfo fallbacks: numeric id, login, avatar_url
	if res.Account.ProviderAccountID != "5800" || res.User.Name != "octo" {
		t.Fatalf("unexpected mapping: %+v %+v", res.User, res.Account)
	}
	if res.User.Email != "octo@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
}

func TestCallback_StateCheckDisabled(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.omitIDToken = true

	h := newTestHandler(f, time.Now)
	p := &provider.Config{
		ID:       "acme",
		Name:     "Acme",
		Type:     provider.TypeOAuth2,
		ClientID: "cid",
		// Checks vacío: el provider optó por no verificar state.
		Endpoints: provider.Endpoints{
			AuthorizationURL: f.srv.URL + "/authorize",
			TokenURL:         f.srv.URL + "/token",
			UserinfoURL:      f.srv.URL + "/userinfo",
			Explicit:         true,
		},
	}

	// Ni state en la query ni cookies: sin checks habilitados debe validar igual.
	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}},
		Cookies: map[string]string{},
	}
	res, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if err != nil {
		t.Fatalf("Callback err: %v", err)
	}
	if res.User == nil || res.Account == nil {
		t.Fatalf("no user/account: %+v", res)
	}
	if len(res.Cookies) != 0 {
		t.Fatalf("no checks issued but cookies returned: %v", res.Cookies)
	}
}

func TestCallback_ProviderError(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	_, cookies := startFlow(t, h, p)

	req := CallbackRequest{
		Query: url.Values{
			"error":             {"access_denied"},
			"error_description": {"user said no"},
		},
		Cookies: cookies,
	}
	_, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if !IsKind(err, KindCallback) {
		t.Fatalf("want KindCallback, got %v", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Payload["error"] != "access_denied" {
		t.Fatalf("payload not preserved: %+v", fe)
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	_, cookies := startFlow(t, h, p)

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {"attacker-chosen"}},
		Cookies: cookies,
	}
	res, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if !IsKind(err, KindCallback) {
		t.Fatalf("want KindCallback, got %v", err)
	}
	// the state cookie was consumed, so its clearing cookie must be present
	if res == nil || len(res.Cookies) == 0 {
		t.Fatalf("clearing cookies missing on rejected callback")
	}
}

func TestCallback_MissingCode(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)

	req := CallbackRequest{
		Query:   url.Values{"state": {q.Get("state")}},
		Cookies: cookies,
	}
	if _, err := h.Callback(context.Background(), p, req, testRedirectURI); !IsKind(err, KindCallback) {
		t.Fatalf("want KindCallback, got %v", err)
	}
}

func TestCallback_ReplayRejected(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)
	f.nonce = q.Get("nonce")

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	if _, err := h.Callback(context.Background(), p, req, testRedirectURI); err != nil {
		t.Fatalf("first callback err: %v", err)
	}
	// identical replay: every check value was consumed the first time
	if _, err := h.Callback(context.Background(), p, req, testRedirectURI); err == nil {
		t.Fatalf("replayed callback succeeded")
	}
}

func TestCallback_TokenEndpointError(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.tokenError = "invalid_grant"
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	_, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if !IsKind(err, KindTokenExchange) {
		t.Fatalf("want KindTokenExchange, got %v", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Payload["error"] != "invalid_grant" {
		t.Fatalf("provider error payload not preserved: %+v", fe)
	}
}

func TestCallback_WWWAuthenticateIsFatal(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.challenge = `Basic realm="token"`
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)
	f.nonce = q.Get("nonce")

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	_, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if !IsKind(err, KindTokenExchange) {
		t.Fatalf("want KindTokenExchange, got %v", err)
	}
	if !strings.Contains(err.Error(), "WWW-Authenticate") {
		t.Fatalf("challenge not surfaced: %v", err)
	}
}

func TestCallback_MissingIDToken(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.omitIDToken = true
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	if _, err := h.Callback(context.Background(), p, req, testRedirectURI); !IsKind(err, KindTokenExchange) {
		t.Fatalf("want KindTokenExchange, got %v", err)
	}
}

func TestCallback_NonceMismatch(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	f.wrongNonce = true
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)

	q, cookies := startFlow(t, h, p)
	f.nonce = q.Get("nonce")

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	if _, err := h.Callback(context.Background(), p, req, testRedirectURI); !IsKind(err, KindTokenExchange) {
		t.Fatalf("want KindTokenExchange, got %v", err)
	}
}

func TestCallback_TokenRequestHook(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)
	p.Type = provider.TypeOAuth2
	p.Checks = []provider.Check{provider.CheckState}
	p.Hooks.TokenRequest = func(ctx context.Context, in provider.TokenRequestInput) (*provider.TokenSet, error) {
		return nil, fmt.Errorf("device grant unavailable")
	}

	q, cookies := startFlow(t, h, p)

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	_, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if !IsKind(err, KindTokenRequest) {
		t.Fatalf("want KindTokenRequest, got %v", err)
	}
}

func TestCallback_ProfileHookPanicIsNonFatal(t *testing.T) {
	t.Parallel()
	f := newFakeIDP(t)
	h := newTestHandler(f, time.Now)
	p := oidcProvider(f)
	p.Hooks.Profile = func(provider.Profile, provider.TokenSet) (*provider.MappedUser, error) {
		panic("garbage in the profile")
	}

	q, cookies := startFlow(t, h, p)
	f.nonce = q.Get("nonce")

	req := CallbackRequest{
		Query:   url.Values{"code": {"authcode"}, "state": {q.Get("state")}},
		Cookies: cookies,
	}
	res, err := h.Callback(context.Background(), p, req, testRedirectURI)
	if err != nil {
		t.Fatalf("panic in hook escalated to error: %v", err)
	}
	if res.User != nil || res.Account != nil {
		t.Fatalf("user/account produced from failed mapping")
	}
	if len(res.Profile) == 0 {
		t.Fatalf("raw profile should still be available")
	}
}

func TestEffectiveRedirectURI(t *testing.T) {
	t.Parallel()
	p := &provider.Config{RedirectProxyURL: "https://proxy.test/cb"}

	if got := effectiveRedirectURI(p, testRedirectURI); got != "https://proxy.test/cb" {
		t.Fatalf("proxy not applied: %q", got)
	}
	if got := effectiveRedirectURI(p, "https://proxy.test/cb?t=1"); got != "https://proxy.test/cb?t=1" {
		t.Fatalf("callback at proxy rewritten: %q", got)
	}
	p.RedirectProxyURL = ""
	if got := effectiveRedirectURI(p, testRedirectURI); got != testRedirectURI {
		t.Fatalf("no proxy configured but URI changed: %q", got)
	}
}
