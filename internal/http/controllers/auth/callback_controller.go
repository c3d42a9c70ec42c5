package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/signon/internal/flow"
	"github.com/dropDatabas3/signon/internal/http/httperrors"
	svc "github.com/dropDatabas3/signon/internal/http/services/auth"
	"github.com/dropDatabas3/signon/internal/observability/logger"
)

// CallbackController handles the provider redirect endpoint.
type CallbackController struct {
	service svc.Service
}

// NewCallbackController creates a new CallbackController.
func NewCallbackController(service svc.Service) *CallbackController {
	return &CallbackController{service: service}
}

// Callback handles GET /auth/{provider}/callback
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	providerID := chi.URLParam(r, "provider")
	if providerID == "" {
		log.Warn("missing provider in path")
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing provider"))
		return
	}

	cookies := make(map[string]string, len(r.Cookies()))
	for _, ck := range r.Cookies() {
		cookies[ck.Name] = ck.Value
	}

	res, err := c.service.Callback(ctx, providerID, flow.CallbackRequest{
		Query:   r.URL.Query(),
		Cookies: cookies,
	})

	// Clearing/issued cookies apply on every outcome: a rejected callback
	// must not leave live check cookies behind.
	if res != nil {
		for _, ck := range res.Cookies {
			http.SetCookie(w, ck)
		}
	}

	if err != nil {
		log.Warn("callback rejected", logger.Provider(providerID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if res.User == nil {
		// Recoverable: profile mapping failed, nothing was persisted.
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "profile_unmapped"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user":    res.User,
		"account": res.Account,
	})
}
