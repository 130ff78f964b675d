package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"velancis-storefront/api"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// Spec is the OpenAPI document, YAML or JSON
	Spec []byte
	// ValidateRequests enables request validation
	ValidateRequests bool
	// ValidateResponses enables response validation (impacts performance)
	ValidateResponses bool
	// SkipPaths are path prefixes that bypass validation
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates requests against the embedded gateway document
func DefaultOpenAPIValidatorConfig(enabled bool) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           enabled,
		Spec:              api.OpenAPI,
		ValidateRequests:  true,
		ValidateResponses: false,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/ws/",
		},
	}
}

// LoadOpenAPIRouter parses and validates an OpenAPI document and builds a router for it
func LoadOpenAPIRouter(spec []byte) (routers.Router, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}
	return router, nil
}

// OpenAPIValidator creates a middleware that validates HTTP requests and responses
// against an OpenAPI 3.0 specification
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultOpenAPIValidatorConfig(true)
	}

	noop := func(next http.Handler) http.Handler { return next }

	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return noop
	}

	router, err := LoadOpenAPIRouter(config.Spec)
	if err != nil {
		// A broken document must not take the gateway down with it
		slog.Error("OpenAPI validation unavailable", slog.String("error", err.Error()))
		return noop
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses))

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, config.SkipPaths) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if config.ValidateRequests {
					slog.Warn("request path not found in OpenAPI spec",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path))
					writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown route: %s %s", r.Method, r.URL.Path))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			requestInput := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), requestInput); err != nil {
					slog.Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Request validation failed: %s", err.Error()))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(recorder, r)

			responseInput := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: requestInput,
				Status:                 recorder.statusCode,
				Header:                 recorder.Header(),
				Body:                   io.NopCloser(bytes.NewReader(recorder.body)),
				Options:                options,
			}

			// The response is already on the wire, so a mismatch is only logged
			if err := openapi3filter.ValidateResponse(r.Context(), responseInput); err != nil {
				slog.Warn("response validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.statusCode),
					slog.String("error", err.Error()))
			}
		})
	}
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// responseRecorder wraps http.ResponseWriter to capture response data
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
