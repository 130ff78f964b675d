package main

import (
	"net/http"

	"velancis-storefront/internal/handler"
	"velancis-storefront/internal/middleware"
	"velancis-storefront/internal/security"
	"velancis-storefront/internal/service"
	"velancis-storefront/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routerDeps is everything the HTTP surface is built from
type routerDeps struct {
	storefront        *service.Storefront
	hub               *websocket.Hub
	tokens            *security.TokenManager
	checks            map[string]handler.Check
	allowedOrigins    []string
	openAPIValidation bool
	authLimiter       *middleware.RateLimiter
	apiLimiter        *middleware.RateLimiter
}

func newRouter(d routerDeps) http.Handler {
	sf := d.storefront

	sessionHandler := handler.NewSessionHandler(sf.Session)
	cartHandler := handler.NewCartHandler(sf.Cart)
	wishlistHandler := handler.NewWishlistHandler(sf.Wishlist)
	wsHandler := handler.NewWebSocketHandler(d.hub, sf, d.allowedOrigins)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext(sf.Session))
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.allowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(d.checks))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not Found"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(d.openAPIValidation)))
		r.Use(middleware.CSRF(d.tokens))

		r.Get("/csrf", handler.CSRFToken(d.tokens))

		// Login endpoints get the stricter limiter
		r.Group(func(r chi.Router) {
			r.Use(d.authLimiter.Middleware())
			r.Get("/session/login-url", sessionHandler.LoginURL)
			r.Post("/session/login", sessionHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.apiLimiter.Middleware())

			r.Get("/session", sessionHandler.Get)
			r.Post("/session/logout", sessionHandler.Logout)
			r.Post("/session/me", sessionHandler.Me)

			r.Get("/cart", cartHandler.Get)
			r.Post("/cart/refresh", cartHandler.Refresh)
			r.Post("/cart/items", cartHandler.AddItem)
			r.Put("/cart/items/{id}", cartHandler.UpdateQuantity)
			r.Delete("/cart/items/{id}", cartHandler.RemoveItem)

			r.Get("/wishlist", wishlistHandler.Get)
			r.Post("/wishlist/refresh", wishlistHandler.Refresh)
			r.Post("/wishlist/items", wishlistHandler.AddItem)
			r.Get("/wishlist/items/{productId}", wishlistHandler.Check)
			r.Delete("/wishlist/items/{productId}", wishlistHandler.RemoveItem)
		})
	})

	r.Get("/ws/events", wsHandler.HandleConnection)

	return r
}
