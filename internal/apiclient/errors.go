package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNetwork         = errors.New("network error")
	ErrRefreshFailed   = errors.New("access token refresh failed")
	ErrInvalidResponse = errors.New("invalid response from storefront API")
)

// APIError is a non-2xx answer from the storefront API
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an *APIError
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ServerMessage returns the message the API put in its error body, if any
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// IsUnauthorized reports whether err is a 401 from the API
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    extractMessage(status, body),
		Body:       body,
	}
}

// extractMessage reads {"message": ...} or {"error": ...} bodies; anything else falls
// back to the status text.
func extractMessage(status int, body []byte) string {
	var payload struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch m := payload.Message.(type) {
		case string:
			if m != "" {
				return m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}
