package flow

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
)

// validateCallback checks the redirect against the expected code-response
// shape and the recorded state, and returns the authorization code.
//
// A provider-returned error parameter always wins: it is surfaced as a
// KindCallback error with the raw payload, never conflated with exchange
// failures further down the pipeline.
func (h *Handler) validateCallback(ctx context.Context, p *provider.Config, req CallbackRequest, cookies *[]*http.Cookie) (string, error) {
	log := logger.From(ctx).With(logger.Component("flow.validator"), logger.Provider(p.ID))

	q := req.Query

	if errCode := strings.TrimSpace(q.Get("error")); errCode != "" {
		payload := map[string]any{"error": errCode}
		if d := q.Get("error_description"); d != "" {
			payload["error_description"] = d
		}
		if u := q.Get("error_uri"); u != "" {
			payload["error_uri"] = u
		}
		log.Warn("provider returned error in redirect", logger.String("error", errCode))
		return "", callbackErr(p, "provider returned error: "+errCode, payload)
	}

	if p.CheckEnabled(provider.CheckState) {
		expected, ok := h.checks.Use(ctx, p, provider.CheckState, req.Cookies, cookies)
		if !ok {
			return "", callbackErr(p, "state check failed: no recorded state", nil)
		}
		got := q.Get("state")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return "", callbackErr(p, "state check failed: mismatch", map[string]any{"state": got})
		}
	} else {
		// State verification explicitly skipped for this provider.
		log.Debug("state check disabled")
	}

	code := q.Get("code")
	if code == "" {
		return "", callbackErr(p, "missing authorization code", nil)
	}
	return code, nil
}
