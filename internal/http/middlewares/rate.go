package middlewares

import (
	"fmt"
	"net"
	"net/http"

	"github.com/dropDatabas3/signon/internal/http/httperrors"
	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/rate"
)

// WithRateLimit limita por IP de cliente. Si el limiter falla (p. ej. Redis
// caído) el request pasa: preferimos degradar a no limitar antes que cortar
// los logins.
func WithRateLimit(l rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())+1))
				}
				httperrors.WriteError(w, &httperrors.AppError{
					Code:       "RATE_LIMITED",
					Message:    "Demasiadas solicitudes. Intente nuevamente más tarde.",
					HTTPStatus: http.StatusTooManyRequests,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
