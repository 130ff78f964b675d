// Package apiclient is the single chokepoint for calls to the storefront REST API.
// It attaches the current bearer token to every request and recovers from an expired
// access token with one refresh-and-retry per request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"velancis-storefront/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	refreshPath     = "/auth/refresh"
	maxResponseSize = 4 << 20
	defaultTimeout  = 15 * time.Second
)

// SessionBinding is how the client reads and reports on the session it serves.
// The implementation owns the session; the client never writes session state itself.
type SessionBinding interface {
	AccessToken() string
	TokenRefreshed(ctx context.Context, token string)
	RefreshFailed(ctx context.Context, cause error)
}

// Client handles requests to the storefront REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string

	mu      sync.RWMutex
	session SessionBinding

	refreshGroup singleflight.Group
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A client without a cookie jar
// cannot carry the refresh cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-attempt timeout of the underlying HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent on every request
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a storefront API client. Cookies set by the API (the refresh
// token) are kept in an in-memory jar and replayed on later calls.
func NewClient(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
		userAgent: "velancis-storefront-gateway",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BindSession attaches the session the client reads tokens from
func (c *Client) BindSession(s SessionBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Client) binding() SessionBinding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) accessToken() string {
	if s := c.binding(); s != nil {
		return s.AccessToken()
	}
	return ""
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping reports whether the API answers at all. Any HTTP status counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}
	c.decorate(ctx, httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: ping %s: %v", ErrNetwork, c.baseURL, err)
	}
	resp.Body.Close()
	return nil
}

// Get fetches path and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON and decodes the response into out
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete removes path and decodes the response, if any, into out
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// request is one logical API call; retried marks that it already went through a refresh
type request struct {
	method  string
	path    string
	body    []byte
	retried bool
}

type response struct {
	status int
	body   []byte
}

// Do sends the request with the current bearer token. A 401 triggers one token refresh
// and one resend; a 401 on the resend is returned to the caller. Other failures are
// returned untouched. out, when non-nil, receives the decoded JSON body.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	req := &request{method: method, path: path}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		req.body = payload
	}

	sent := c.accessToken()
	resp, err := c.send(ctx, req, sent)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && !req.retried {
		req.retried = true

		// Another call refreshed the token while this one was in flight.
		token := c.accessToken()
		if token == "" || token == sent {
			token, err = c.refresh(ctx)
			if err != nil {
				return err
			}
		}

		resp, err = c.send(ctx, req, token)
		if err != nil {
			return err
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return newAPIError(method, path, resp.status, resp.body)
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, r *request, token string) (*response, error) {
	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.decorate(ctx, httpReq)
	if r.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return c.roundTrip(ctx, httpReq, r.path)
}

func (c *Client) decorate(ctx context.Context, httpReq *http.Request) {
	requestID := observability.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
}

func (c *Client) roundTrip(ctx context.Context, httpReq *http.Request, path string) (*response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observability.APIRequestDuration.WithLabelValues(httpReq.Method, metricPath(path), "error").
			Observe(time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", httpReq.Method, path, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, httpReq.Method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", ErrNetwork, httpReq.Method, path, err)
	}

	observability.APIRequestDuration.WithLabelValues(httpReq.Method, metricPath(path), strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(start).Seconds())

	observability.FromContext(ctx).Debug("storefront api call",
		slog.String("method", httpReq.Method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	return &response{status: resp.StatusCode, body: body}, nil
}

// refresh mints a new access token. Concurrent callers share a single refresh call.
func (c *Client) refresh(ctx context.Context) (string, error) {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not abort it.
		return c.callRefresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) callRefresh(ctx context.Context) (string, error) {
	logger := observability.Component(ctx, "apiclient")

	token, err := c.requestNewToken(ctx)
	if err != nil {
		observability.TokenRefreshTotal.WithLabelValues("failure").Inc()
		logger.Warn("access token refresh failed, clearing session",
			slog.String("error", err.Error()))

		if s := c.binding(); s != nil {
			s.RefreshFailed(ctx, err)
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	observability.TokenRefreshTotal.WithLabelValues("success").Inc()
	logger.Info("access token refreshed")

	if s := c.binding(); s != nil {
		s.TokenRefreshed(ctx, token)
	}
	return token, nil
}

// requestNewToken calls the refresh endpoint with the cookie jar only; the expired
// bearer token is deliberately not sent.
func (c *Client) requestNewToken(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	c.decorate(ctx, httpReq)

	resp, err := c.roundTrip(ctx, httpReq, refreshPath)
	if err != nil {
		return "", err
	}

	if resp.status < 200 || resp.status > 299 {
		return "", newAPIError(http.MethodPost, refreshPath, resp.status, resp.body)
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return "", fmt.Errorf("%w: refresh: %v", ErrInvalidResponse, err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh returned no access token", ErrInvalidResponse)
	}

	return payload.AccessToken, nil
}

// metricPath collapses resource IDs so metric label cardinality stays bounded
func metricPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) > 1 && (segments[0] == "cart" || segments[0] == "wishlist") {
		return "/" + segments[0] + "/:id"
	}
	return path
}
