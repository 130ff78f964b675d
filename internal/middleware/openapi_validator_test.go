package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velancis-storefront/api"
	"velancis-storefront/internal/testutil"
)

func loadDoc(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.OpenAPI)
	require.NoError(t, err, "failed to load OpenAPI document")
	require.NoError(t, doc.Validate(loader.Context), "OpenAPI document is invalid")
	return doc
}

func TestOpenAPISpecIsValid(t *testing.T) {
	doc := loadDoc(t)

	assert.Equal(t, "Velancis Storefront Gateway API", doc.Info.Title)
	assert.Equal(t, "1.0.0", doc.Info.Version)
}

func TestAllRoutesAreDocumentedInOpenAPI(t *testing.T) {
	doc := loadDoc(t)

	implementedRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/csrf"},
		{"GET", "/api/v1/session"},
		{"GET", "/api/v1/session/login-url"},
		{"POST", "/api/v1/session/login"},
		{"POST", "/api/v1/session/logout"},
		{"POST", "/api/v1/session/me"},
		{"GET", "/api/v1/cart"},
		{"POST", "/api/v1/cart/refresh"},
		{"POST", "/api/v1/cart/items"},
		{"PUT", "/api/v1/cart/items/{id}"},
		{"DELETE", "/api/v1/cart/items/{id}"},
		{"GET", "/api/v1/wishlist"},
		{"POST", "/api/v1/wishlist/refresh"},
		{"POST", "/api/v1/wishlist/items"},
		{"GET", "/api/v1/wishlist/items/{productId}"},
		{"DELETE", "/api/v1/wishlist/items/{productId}"},
		{"GET", "/health"},
		{"GET", "/health/ready"},
		{"GET", "/ws/events"},
	}

	for _, route := range implementedRoutes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			pathItem := doc.Paths.Find(route.path)
			require.NotNil(t, pathItem, "path not found in OpenAPI document: %s", route.path)

			operation := pathItem.GetOperation(route.method)
			require.NotNil(t, operation, "operation not found: %s %s", route.method, route.path)

			assert.NotEmpty(t, operation.OperationID)
			assert.NotEmpty(t, operation.Tags)
			assert.NotZero(t, operation.Responses.Len())
		})
	}

	assert.Len(t, doc.Paths.Map(), 17)
}

func TestShouldSkipPath(t *testing.T) {
	skipPaths := DefaultOpenAPIValidatorConfig(true).SkipPaths

	tests := []struct {
		path     string
		expected bool
	}{
		{"/health", true},
		{"/health/ready", true},
		{"/metrics", true},
		{"/ws/events", true},
		{"/api/v1/cart", false},
		{"/api/v1/session/login", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldSkipPath(tt.path, skipPaths))
		})
	}
}

func newValidated(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := new(bool)
	handler := OpenAPIValidator(DefaultOpenAPIValidatorConfig(true))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
	return handler, called
}

func TestOpenAPIValidator_Requests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "valid add to cart",
			method:     http.MethodPost,
			path:       "/api/v1/cart/items",
			body:       `{"productId":"p-1","quantity":2}`,
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "zero quantity",
			method:     http.MethodPost,
			path:       "/api/v1/cart/items",
			body:       `{"productId":"p-1","quantity":0}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing product id",
			method:     http.MethodPost,
			path:       "/api/v1/cart/items",
			body:       `{"quantity":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "quantity update",
			method:     http.MethodPut,
			path:       "/api/v1/cart/items/line-1",
			body:       `{"quantity":3}`,
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "login without code",
			method:     http.MethodPost,
			path:       "/api/v1/session/login",
			body:       `{"state":"abc"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wishlist product without id",
			method:     http.MethodPost,
			path:       "/api/v1/wishlist/items",
			body:       `{"name":"Lamp"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/v1/orders",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "wrong method",
			method:     http.MethodPatch,
			path:       "/api/v1/cart",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "skipped path",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, called := newValidated(t)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			testutil.AssertStatusCode(t, w, tt.wantStatus)
			assert.Equal(t, tt.wantCalled, *called)
		})
	}
}

func TestOpenAPIValidator_BodyStillReadable(t *testing.T) {
	var got string
	handler := OpenAPIValidator(DefaultOpenAPIValidatorConfig(true))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		got = buf.String()
	}))

	body := `{"productId":"p-1","quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.JSONEq(t, body, got)
}

func TestOpenAPIMiddlewareWithInvalidSpec(t *testing.T) {
	config := &OpenAPIValidatorConfig{
		Enabled: true,
		Spec:    []byte("not: [valid"),
	}

	middleware := OpenAPIValidator(config)

	called := false
	w := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.True(t, called, "a broken document must fall back to pass-through")
}

func TestOpenAPIMiddlewareDisabled(t *testing.T) {
	handler := OpenAPIValidator(DefaultOpenAPIValidatorConfig(false))(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/not/documented", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
}
