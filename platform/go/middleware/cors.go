package middleware

import (
	"net/http"
	"strings"
)

// CORS returns a middleware answering preflight requests and stamping the
// response headers. An empty allowlist permits any origin; otherwise the
// request origin is echoed back only when it matches.
func CORS(allowedOrigins ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := "*"
			if len(allowed) > 0 {
				requestOrigin := strings.TrimRight(r.Header.Get("Origin"), "/")
				if _, ok := allowed[requestOrigin]; !ok {
					next.ServeHTTP(w, r)
					return
				}
				origin = requestOrigin
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,Idempotency-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultCORS allows any origin. Tighten with CORS in prod deployments.
func DefaultCORS() func(http.Handler) http.Handler {
	return CORS()
}
