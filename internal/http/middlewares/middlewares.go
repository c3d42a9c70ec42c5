// Package middlewares holds the HTTP middleware chain pieces.
package middlewares

import "net/http"

// Middleware es la firma estándar de un middleware HTTP.
type Middleware func(http.Handler) http.Handler
