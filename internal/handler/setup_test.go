package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"velancis-storefront/internal/apiclient"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/service"
	"velancis-storefront/internal/session"
	"velancis-storefront/internal/storage"
	"velancis-storefront/internal/testutil"
)

type harness struct {
	api    *testutil.FakeAPI
	sf     *service.Storefront
	router chi.Router
}

func newHarness(t *testing.T, consent *session.Consent, publisher events.Publisher) *harness {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	client := apiclient.NewClient(api.URL(), apiclient.WithTimeout(2*time.Second))
	sf := service.NewStorefront(client, storage.NewMemory(), publisher, consent)

	sessions := NewSessionHandler(sf.Session)
	carts := NewCartHandler(sf.Cart)
	wishlists := NewWishlistHandler(sf.Wishlist)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", sessions.Get)
		r.Get("/session/login-url", sessions.LoginURL)
		r.Post("/session/login", sessions.Login)
		r.Post("/session/logout", sessions.Logout)
		r.Post("/session/me", sessions.Me)

		r.Get("/cart", carts.Get)
		r.Post("/cart/refresh", carts.Refresh)
		r.Post("/cart/items", carts.AddItem)
		r.Put("/cart/items/{id}", carts.UpdateQuantity)
		r.Delete("/cart/items/{id}", carts.RemoveItem)

		r.Get("/wishlist", wishlists.Get)
		r.Post("/wishlist/refresh", wishlists.Refresh)
		r.Post("/wishlist/items", wishlists.AddItem)
		r.Get("/wishlist/items/{productId}", wishlists.Check)
		r.Delete("/wishlist/items/{productId}", wishlists.RemoveItem)
	})

	return &harness{api: api, sf: sf, router: r}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(t, method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sf.Session.Login(context.Background(), "code"))
}
