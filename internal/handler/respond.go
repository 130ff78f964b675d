package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"velancis-storefront/internal/apiclient"
	"velancis-storefront/internal/cart"
	"velancis-storefront/internal/domain"
	"velancis-storefront/internal/observability"
	"velancis-storefront/internal/session"
)

const maxBodyBytes = 1 << 20

const (
	msgLoginRequired  = "Please log in to continue"
	msgSessionExpired = "Your session has expired. Please log in again."
	msgUnreachable    = "The storefront is unreachable. Please try again."
	msgInternal       = "Internal server error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and shopper-facing message and logs server-side
// failures
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func classifyError(err error) (int, string) {
	var cartErr *cart.Error
	if errors.As(err, &cartErr) {
		switch cartErr.Kind {
		case cart.KindLoginRequired, cart.KindSessionExpired:
			return http.StatusUnauthorized, cartErr.Message
		case cart.KindValidation:
			return http.StatusBadRequest, cartErr.Message
		case cart.KindNetwork:
			return http.StatusBadGateway, cartErr.Message
		default:
			return http.StatusInternalServerError, cartErr.Message
		}
	}

	switch {
	case errors.Is(err, domain.ErrLoginRequired):
		return http.StatusUnauthorized, msgLoginRequired
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrUnknownState):
		return http.StatusBadRequest, "Sign-in link expired. Please try again."
	case errors.Is(err, session.ErrConsentDisabled):
		return http.StatusServiceUnavailable, "Google sign-in is not configured"
	case errors.Is(err, apiclient.ErrRefreshFailed):
		return http.StatusUnauthorized, msgSessionExpired
	case errors.Is(err, apiclient.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, msgUnreachable
	}

	switch apiclient.StatusCode(err) {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		status := apiclient.StatusCode(err)
		if msg := apiclient.ServerMessage(err); msg != "" {
			return status, msg
		}
		return status, http.StatusText(status)
	case http.StatusUnauthorized:
		return http.StatusUnauthorized, msgSessionExpired
	}

	return http.StatusInternalServerError, msgInternal
}

// decodeBody reads a JSON request body into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}
