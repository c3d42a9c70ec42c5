// Package router aggregates the service routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/dropDatabas3/signon/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/signon/internal/http/controllers/health"
	mw "github.com/dropDatabas3/signon/internal/http/middlewares"
	svc "github.com/dropDatabas3/signon/internal/http/services/auth"
	"github.com/dropDatabas3/signon/internal/rate"
	"github.com/dropDatabas3/signon/internal/store"
)

// Deps contains all dependencies for the router.
type Deps struct {
	Auth    svc.Service
	Store   store.Store
	Limiter rate.Limiter // optional; nil disables rate limiting
}

// New builds the service router with the full middleware chain.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRequestLogger())
	r.Use(mw.WithRecover())

	start := authctrl.NewStartController(d.Auth)
	callback := authctrl.NewCallbackController(d.Auth)
	providers := authctrl.NewProvidersController(d.Auth)
	health := healthctrl.NewController(d.Store)

	r.Get("/auth/providers", providers.List)
	r.Group(func(g chi.Router) {
		g.Use(mw.WithRateLimit(d.Limiter))
		g.Get("/auth/{provider}/start", start.Start)
		g.Get("/auth/{provider}/callback", callback.Callback)
	})

	r.Get("/healthz", health.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
