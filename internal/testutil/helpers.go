// Package testutil provides shared fixtures, HTTP helpers and an in-process fake of the
// storefront REST API for package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSONError fails unless the response has the status and an "error" field with msg
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error response: %v. Body: %s", err, w.Body.String())
	}
	if !strings.Contains(body.Error, expectedMsg) {
		t.Errorf("expected error message %q, got %q", expectedMsg, body.Error)
	}
}

// AssertHeader fails if the response header doesn't match expected value
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	if got := w.Header().Get(key); got != expected {
		t.Errorf("header %q: got %q, want %q", key, got, expected)
	}
}

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes JSON response body into the given type
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}
