package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/signon/internal/http/httperrors"
	svc "github.com/dropDatabas3/signon/internal/http/services/auth"
	"github.com/dropDatabas3/signon/internal/observability/logger"
)

// StartController handles the authorization-redirect endpoint.
type StartController struct {
	service svc.Service
}

// NewStartController creates a new StartController.
func NewStartController(service svc.Service) *StartController {
	return &StartController{service: service}
}

// Start handles GET /auth/{provider}/start
func (c *StartController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("StartController.Start"))

	providerID := chi.URLParam(r, "provider")
	if providerID == "" {
		log.Warn("missing provider in path")
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing provider"))
		return
	}

	res, err := c.service.Start(ctx, providerID)
	if err != nil {
		log.Warn("start failed", logger.Provider(providerID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	for _, ck := range res.Cookies {
		http.SetCookie(w, ck)
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}
