package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"velancis-storefront/internal/domain"
	"velancis-storefront/internal/wishlist"
)

// WishlistHandler serves the shopper's wishlist
type WishlistHandler struct {
	wishlist *wishlist.Store
}

// NewWishlistHandler creates a new wishlist handler
func NewWishlistHandler(w *wishlist.Store) *WishlistHandler {
	return &WishlistHandler{wishlist: w}
}

// WishlistResponse is the wishlist as returned to views
type WishlistResponse struct {
	Items []domain.WishlistLine `json:"items"`
}

// CheckResponse tells whether a product is saved
type CheckResponse struct {
	ProductID  string `json:"productId"`
	InWishlist bool   `json:"inWishlist"`
}

func (h *WishlistHandler) view() WishlistResponse {
	return WishlistResponse{Items: h.wishlist.Items()}
}

// Get returns the current wishlist
func (h *WishlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

// Refresh reloads the wishlist from the API
func (h *WishlistHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.wishlist.Fetch(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

// AddItem saves a product
func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !decodeBody(w, r, &product) {
		return
	}

	if err := h.wishlist.AddItem(r.Context(), product); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

// RemoveItem drops a saved product
func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.wishlist.RemoveItem(r.Context(), chi.URLParam(r, "productId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

// Check reports whether a product is saved without calling the API
func (h *WishlistHandler) Check(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	writeJSON(w, http.StatusOK, CheckResponse{
		ProductID:  productID,
		InWishlist: h.wishlist.IsInWishlist(productID),
	})
}
