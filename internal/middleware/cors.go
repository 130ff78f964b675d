package middleware

import (
	"net/http"
	"strings"
)

// CORS creates a CORS middleware
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin || o == "*" {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token, X-Request-Id")
				w.Header().Add("Vary", "Origin")
			}

			// Handle preflight request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ParseOrigins parses comma-separated origins string
func ParseOrigins(originsStr string) []string {
	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))
	for _, origin := range parts {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// AllowsOrigin reports whether origin is in allowed. Requests without an Origin header
// come from non-browser clients and are allowed.
func AllowsOrigin(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}
