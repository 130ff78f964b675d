package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"velancis-storefront/internal/observability"
)

// CSRFHeader carries the token on mutating requests
const CSRFHeader = "X-CSRF-Token"

// TokenVerifier checks a submitted CSRF token
type TokenVerifier interface {
	Verify(submitted string) error
}

// CSRF rejects state-changing requests that do not echo the gateway's CSRF token.
//
// Safe methods and the health, metrics and websocket endpoints are exempt. The token is
// read from the X-CSRF-Token header, falling back to X-XSRF-Token.
func CSRF(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			submitted := extractCSRFToken(r)
			if submitted == "" {
				logCSRFFailure(r, "missing token")
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}

			if err := tokens.Verify(submitted); err != nil {
				logCSRFFailure(r, "invalid token")
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	exemptPaths := []string{
		"/health",
		"/metrics",
		"/ws/",
	}

	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

func logCSRFFailure(r *http.Request, reason string) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
