package handler

import (
	"net/http"
)

// TokenSource hands out the current CSRF token
type TokenSource interface {
	Current() string
}

// CSRFToken returns the token mutating requests must echo in X-CSRF-Token
func CSRFToken(tokens TokenSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"token": tokens.Current()})
	}
}
