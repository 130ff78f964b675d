package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"velancis-storefront/internal/observability"
)

// ShopperSource reports who is signed in to the gateway
type ShopperSource interface {
	ShopperID() string
}

// RequestContext copies the chi request ID and the signed-in shopper into the request
// context so every log line written while serving the request carries them.
// It must be mounted after chi's RequestID middleware.
func RequestContext(shoppers ShopperSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if reqID := chimw.GetReqID(ctx); reqID != "" {
				ctx = observability.WithRequestID(ctx, reqID)
				w.Header().Set(chimw.RequestIDHeader, reqID)
			}

			if shoppers != nil {
				if id := shoppers.ShopperID(); id != "" {
					ctx = observability.WithShopperID(ctx, id)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
