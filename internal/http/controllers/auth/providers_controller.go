package auth

import (
	"encoding/json"
	"net/http"

	svc "github.com/dropDatabas3/signon/internal/http/services/auth"
)

// ProvidersController lists the configured providers.
type ProvidersController struct {
	service svc.Service
}

// NewProvidersController creates a new ProvidersController.
func NewProvidersController(service svc.Service) *ProvidersController {
	return &ProvidersController{service: service}
}

// List handles GET /auth/providers
func (c *ProvidersController) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"providers": c.service.Providers(r.Context()),
	})
}
