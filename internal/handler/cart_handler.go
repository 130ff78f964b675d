package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"velancis-storefront/internal/cart"
)

// CartHandler serves the shopper's cart
type CartHandler struct {
	cart *cart.Store
}

// NewCartHandler creates a new cart handler
func NewCartHandler(c *cart.Store) *CartHandler {
	return &CartHandler{cart: c}
}

// UpdateQuantityRequest sets the quantity of a line
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// Get returns the cart as last confirmed by the API
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cart.View())
}

// Refresh reloads the cart. Failures are logged by the store and the cached cart is returned.
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.cart.FetchCart(r.Context())
	writeJSON(w, http.StatusOK, h.cart.View())
}

// AddItem puts a product in the cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req cart.AddRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.cart.AddItem(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cart.View())
}

// UpdateQuantity changes the quantity of one line
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.cart.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cart.View())
}

// RemoveItem deletes one line
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.RemoveItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cart.View())
}
