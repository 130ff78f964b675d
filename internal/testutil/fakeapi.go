package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"velancis-storefront/internal/domain"
)

// RefreshCookieName is the cookie the fake API uses to carry the refresh token
const RefreshCookieName = "refresh_token"

// Routes served by FakeAPI, used as keys for Calls, Fail and SetHook
const (
	RouteLogin          = "POST /auth/google"
	RouteLogout         = "POST /auth/logout"
	RouteRefresh        = "POST /auth/refresh"
	RouteMe             = "GET /auth/me"
	RouteGetCart        = "GET /cart"
	RouteAddCart        = "POST /cart"
	RouteUpdateCart     = "PUT /cart/{id}"
	RouteRemoveCart     = "DELETE /cart/{id}"
	RouteGetWishlist    = "GET /wishlist"
	RouteAddWishlist    = "POST /wishlist"
	RouteRemoveWishlist = "DELETE /wishlist/{productId}"
)

// NetworkFailure passed to Fail makes the route drop the connection
const NetworkFailure = -1

// RecordedRequest is one request seen by FakeAPI
type RecordedRequest struct {
	Route         string
	Method        string
	Path          string
	Authorization string
	Body          string
}

// FakeAPI is an in-process stand-in for the storefront REST API. It issues tokens,
// keeps one shopper's cart and wishlist and can be told to fail individual routes.
type FakeAPI struct {
	Server *httptest.Server

	mu           sync.Mutex
	user         domain.User
	accessToken  string
	refreshToken string
	tokenSeq     int
	lineSeq      int
	rejectCode   string
	wishlistBare bool
	products     map[string]domain.ProductSnapshot
	cart         []domain.CartLine
	wishlist     []domain.WishlistLine
	failures     map[string]int
	messages     map[string]string
	hooks        map[string]func(*http.Request)
	requests     []RecordedRequest
}

// NewFakeAPI starts a fake API that is shut down when the test ends
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		user:     *NewTestUser(),
		products: make(map[string]domain.ProductSnapshot),
		failures: make(map[string]int),
		messages: make(map[string]string),
		hooks:    make(map[string]func(*http.Request)),
	}

	mux := http.NewServeMux()
	f.handle(mux, RouteLogin, f.login)
	f.handle(mux, RouteLogout, f.logout)
	f.handle(mux, RouteRefresh, f.refresh)
	f.handle(mux, RouteMe, f.authed(f.me))
	f.handle(mux, RouteGetCart, f.authed(f.getCart))
	f.handle(mux, RouteAddCart, f.authed(f.addCart))
	f.handle(mux, RouteUpdateCart, f.authed(f.updateCart))
	f.handle(mux, RouteRemoveCart, f.authed(f.removeCart))
	f.handle(mux, RouteGetWishlist, f.authed(f.getWishlist))
	f.handle(mux, RouteAddWishlist, f.authed(f.addWishlist))
	f.handle(mux, RouteRemoveWishlist, f.authed(f.removeWishlist))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API base URL
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// User returns the shopper the fake API logs in
func (f *FakeAPI) User() domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// AccessToken returns the token the API currently accepts
func (f *FakeAPI) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessToken
}

// IssueTokens makes the API accept a fresh access token and refresh cookie, as if a
// login had just happened. It returns the access token.
func (f *FakeAPI) IssueTokens() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenSeq++
	f.accessToken = fmt.Sprintf("access-%d", f.tokenSeq)
	f.refreshToken = fmt.Sprintf("refresh-%d", f.tokenSeq)
	return f.accessToken
}

// RefreshCookie returns the cookie a browser would hold after login
func (f *FakeAPI) RefreshCookie() *http.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &http.Cookie{Name: RefreshCookieName, Value: f.refreshToken, Path: "/"}
}

// ExpireAccessToken makes the current access token invalid; the refresh cookie stays valid
func (f *FakeAPI) ExpireAccessToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = "expired-" + f.accessToken
}

// RejectCode makes login with code fail with 401
func (f *FakeAPI) RejectCode(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCode = code
}

// ServeWishlistAsArray switches GET /wishlist from {"items": [...]} to a bare array
func (f *FakeAPI) ServeWishlistAsArray() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wishlistBare = true
}

// AddProduct registers the snapshot embedded in cart lines for the product
func (f *FakeAPI) AddProduct(p domain.ProductSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

// SetCart replaces the server-side cart
func (f *FakeAPI) SetCart(lines []domain.CartLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart = slices.Clone(lines)
}

// Cart returns the server-side cart
func (f *FakeAPI) Cart() []domain.CartLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cart)
}

// SetWishlist replaces the server-side wishlist
func (f *FakeAPI) SetWishlist(lines []domain.WishlistLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wishlist = slices.Clone(lines)
}

// Wishlist returns the server-side wishlist
func (f *FakeAPI) Wishlist() []domain.WishlistLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.wishlist)
}

// Fail makes route answer with status until Recover is called. Use NetworkFailure to
// drop the connection instead.
func (f *FakeAPI) Fail(route string, status int) {
	f.FailWithMessage(route, status, http.StatusText(status))
}

// FailWithMessage is Fail with a specific {"message": ...} body
func (f *FakeAPI) FailWithMessage(route string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = status
	f.messages[route] = message
}

// Recover undoes Fail for route
func (f *FakeAPI) Recover(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, route)
	delete(f.messages, route)
}

// SetHook runs fn at the start of every request to route, before any failure or auth
// check. Blocking in fn holds the response back.
func (f *FakeAPI) SetHook(route string, fn func(*http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[route] = fn
}

// Calls returns how many requests route received
func (f *FakeAPI) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Route == route {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of requests received on any route
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns every request received on route, oldest first
func (f *FakeAPI) Requests(route string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RecordedRequest
	for _, r := range f.requests {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeAPI) handle(mux *http.ServeMux, route string, h http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Route:         route,
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          string(body),
		})
		hook := f.hooks[route]
		status, failing := f.failures[route]
		message := f.messages[route]
		f.mu.Unlock()

		if hook != nil {
			hook(r)
		}

		if failing {
			if status == NetworkFailure {
				dropConnection(w)
				return
			}
			writeJSON(w, status, map[string]string{"message": message})
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		h(w, r)
	})
}

func (f *FakeAPI) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := f.accessToken != "" && r.Header.Get("Authorization") == "Bearer "+f.accessToken
		f.mu.Unlock()

		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		h(w, r)
	}
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "code is required"})
		return
	}

	f.mu.Lock()
	rejected := req.Code == f.rejectCode
	f.mu.Unlock()
	if rejected {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid authorization code"})
		return
	}

	token := f.IssueTokens()
	http.SetCookie(w, f.RefreshCookie())
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": token,
		"user":        f.User(),
	})
}

func (f *FakeAPI) logout(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.accessToken = ""
	f.refreshToken = ""
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: RefreshCookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)

	f.mu.Lock()
	valid := err == nil && f.refreshToken != "" && cookie.Value == f.refreshToken
	if valid {
		f.tokenSeq++
		f.accessToken = fmt.Sprintf("access-%d", f.tokenSeq)
	}
	token := f.accessToken
	f.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token invalid"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

func (f *FakeAPI) me(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": f.User()})
}

func (f *FakeAPI) getCart(w http.ResponseWriter, _ *http.Request) {
	f.writeCart(w)
}

func (f *FakeAPI) addCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string  `json:"productId"`
		VariantID *string `json:"variantId"`
		Quantity  int     `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "productId is required"})
		return
	}
	if req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Quantity must be at least 1"})
		return
	}

	f.mu.Lock()
	merged := false
	for i, l := range f.cart {
		if l.ProductID == req.ProductID && equalVariant(l.VariantID, req.VariantID) {
			f.cart[i].Quantity += req.Quantity
			merged = true
			break
		}
	}
	if !merged {
		f.lineSeq++
		f.cart = append(f.cart, domain.CartLine{
			ID:        fmt.Sprintf("line-%d", f.lineSeq),
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
			Product:   f.snapshot(req.ProductID),
		})
	}
	f.mu.Unlock()

	f.writeCart(w)
}

func (f *FakeAPI) updateCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Quantity must be at least 1"})
		return
	}

	id := r.PathValue("id")
	f.mu.Lock()
	i := slices.IndexFunc(f.cart, func(l domain.CartLine) bool { return l.ID == id })
	if i >= 0 {
		f.cart[i].Quantity = req.Quantity
	}
	f.mu.Unlock()

	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Cart item not found"})
		return
	}
	f.writeCart(w)
}

func (f *FakeAPI) removeCart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	f.cart = slices.DeleteFunc(f.cart, func(l domain.CartLine) bool { return l.ID == id })
	f.mu.Unlock()

	f.writeCart(w)
}

func (f *FakeAPI) getWishlist(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	items := slices.Clone(f.wishlist)
	bare := f.wishlistBare
	f.mu.Unlock()

	if items == nil {
		items = []domain.WishlistLine{}
	}
	if bare {
		writeJSON(w, http.StatusOK, items)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (f *FakeAPI) addWishlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "productId is required"})
		return
	}

	f.mu.Lock()
	p := f.snapshot(req.ProductID)
	line := domain.WishlistLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		AddedAt:   time.Now().UTC(),
	}
	if !slices.ContainsFunc(f.wishlist, func(l domain.WishlistLine) bool { return l.ProductID == req.ProductID }) {
		f.wishlist = append(f.wishlist, line)
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, line)
}

func (f *FakeAPI) removeWishlist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")
	f.mu.Lock()
	before := len(f.wishlist)
	f.wishlist = slices.DeleteFunc(f.wishlist, func(l domain.WishlistLine) bool { return l.ProductID == id })
	removed := len(f.wishlist) < before
	f.mu.Unlock()

	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not in wishlist"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) writeCart(w http.ResponseWriter) {
	f.mu.Lock()
	items := slices.Clone(f.cart)
	f.mu.Unlock()

	if items == nil {
		items = []domain.CartLine{}
	}
	writeJSON(w, http.StatusOK, domain.Cart{ID: "cart-1", Items: items})
}

// snapshot must be called with f.mu held
func (f *FakeAPI) snapshot(productID string) domain.ProductSnapshot {
	if p, ok := f.products[productID]; ok {
		return p
	}
	return domain.ProductSnapshot{
		ID:    productID,
		Name:  "Product " + productID,
		Slug:  "product-" + productID,
		Price: 10,
	}
}

func equalVariant(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
