package server

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// CORSMiddleware wraps the SSE transport with CORS headers. An empty origin list allows all.
func CORSMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}
	if len(cfg.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		allowed := cfg.AllowedOrigins
		opts.AllowOriginFunc = func(origin string) bool {
			return isOriginAllowed(origin, allowed)
		}
	}
	return cors.New(opts).Handler
}

// isOriginAllowed supports exact matches and wildcard subdomains such as "*.example.com".
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			domain := strings.TrimPrefix(allowed, "*")
			if strings.HasSuffix(origin, domain) {
				return true
			}
		}
	}
	return false
}
