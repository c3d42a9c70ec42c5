package auth

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/signon/internal/flow"
	"github.com/dropDatabas3/signon/internal/http/httperrors"
	"github.com/dropDatabas3/signon/internal/metrics"
	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
	"github.com/dropDatabas3/signon/internal/store"
)

// Deps contains dependencies for the auth service.
type Deps struct {
	Registry *provider.Registry
	Flow     *flow.Handler
	Store    store.Store
	BaseURL  string // public base URL; redirect URIs are derived from it
}

type service struct {
	reg     *provider.Registry
	flow    *flow.Handler
	store   store.Store
	baseURL string
}

// NewService creates the auth service.
func NewService(d Deps) Service {
	return &service{
		reg:     d.Registry,
		flow:    d.Flow,
		store:   d.Store,
		baseURL: strings.TrimRight(d.BaseURL, "/"),
	}
}

func (s *service) Providers(context.Context) []ProviderInfo {
	ids := s.reg.IDs()
	out := make([]ProviderInfo, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.reg.Get(id); ok {
			out = append(out, ProviderInfo{ID: p.ID, Name: p.Name, Type: string(p.Type)})
		}
	}
	return out
}

func (s *service) Start(ctx context.Context, providerID string) (*StartResult, error) {
	p, ok := s.reg.Get(providerID)
	if !ok {
		return nil, httperrors.ErrProviderNotFound.WithDetail(providerID)
	}

	res, err := s.flow.Start(ctx, p, s.redirectURI(providerID))
	if err != nil {
		return nil, httperrors.FromFlowError(err)
	}
	return &StartResult{RedirectURL: res.RedirectURL, Cookies: res.Cookies}, nil
}

func (s *service) Callback(ctx context.Context, providerID string, req flow.CallbackRequest) (*CallbackResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.Callback"), logger.Provider(providerID))

	p, ok := s.reg.Get(providerID)
	if !ok {
		return nil, httperrors.ErrProviderNotFound.WithDetail(providerID)
	}

	started := time.Now()
	res, err := s.flow.Callback(ctx, p, req, s.redirectURI(providerID))
	metrics.CallbackLatency.WithLabelValues(providerID).
		Observe(float64(time.Since(started).Milliseconds()))

	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
		out := &CallbackResult{}
		if res != nil {
			out.Cookies = res.Cookies
		}
		log.Warn("callback failed", logger.Err(err))
		return out, httperrors.FromFlowError(err)
	}

	out := &CallbackResult{Cookies: res.Cookies}
	if res.User == nil {
		// Profile mapping failed; the flow already logged the raw profile.
		metrics.CallbacksTotal.WithLabelValues(providerID, "unmapped").Inc()
		return out, nil
	}

	user, err := s.store.UpsertUser(ctx, res.User)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
		return out, httperrors.ErrInternalServerError.WithCause(err)
	}
	if err := s.store.LinkAccount(ctx, user.ID, res.Account); err != nil {
		metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
		return out, httperrors.ErrInternalServerError.WithCause(err)
	}

	metrics.CallbacksTotal.WithLabelValues(providerID, "success").Inc()
	out.User = user
	out.Account = res.Account
	log.Info("sign-in completed", logger.UserID(user.ID))
	return out, nil
}

func (s *service) redirectURI(providerID string) string {
	return s.baseURL + "/auth/" + providerID + "/callback"
}
