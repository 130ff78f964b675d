package cart

import (
	"context"
	"errors"
	"net/http"

	"velancis-storefront/internal/apiclient"
	"velancis-storefront/internal/domain"
)

// Kind classifies a failed cart action for the shopper
type Kind string

const (
	KindLoginRequired  Kind = "login_required"
	KindNetwork        Kind = "network"
	KindSessionExpired Kind = "session_expired"
	KindValidation     Kind = "validation"
	KindUnknown        Kind = "unknown"
)

const (
	msgLoginRequired  = "Please log in to manage your cart"
	msgNetwork        = "Network error. Please check your connection and try again."
	msgSessionExpired = "Your session has expired. Please log in again."
)

// Error is a cart failure carrying a message fit to show the shopper
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var errLoginRequired = &Error{
	Kind:    KindLoginRequired,
	Message: msgLoginRequired,
	Err:     domain.ErrLoginRequired,
}

// classify maps an API failure to its shopper-facing form. fallback is the message for
// failures that fit no other class.
func classify(err error, fallback string) *Error {
	switch {
	case errors.Is(err, apiclient.ErrNetwork),
		errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
	case errors.Is(err, apiclient.ErrRefreshFailed),
		apiclient.StatusCode(err) == http.StatusUnauthorized:
		return &Error{Kind: KindSessionExpired, Message: msgSessionExpired, Err: err}
	case apiclient.StatusCode(err) == http.StatusBadRequest:
		msg := apiclient.ServerMessage(err)
		if msg == "" {
			msg = fallback
		}
		return &Error{Kind: KindValidation, Message: msg, Err: err}
	default:
		return &Error{Kind: KindUnknown, Message: fallback, Err: err}
	}
}

// Message returns the shopper-facing message for err
func Message(err error) string {
	var cartErr *Error
	if errors.As(err, &cartErr) {
		return cartErr.Message
	}
	if err == nil {
		return ""
	}
	return "Something went wrong. Please try again."
}

// KindOf returns the class of err, KindUnknown for foreign errors
func KindOf(err error) Kind {
	var cartErr *Error
	if errors.As(err, &cartErr) {
		return cartErr.Kind
	}
	return KindUnknown
}
