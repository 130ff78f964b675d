package domain

import (
	"time"
)

// Product is the catalogue entry a view hands to the wishlist
type Product struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Price  float64  `json:"price"`
	Images []string `json:"images,omitempty"`
	Image  string   `json:"image,omitempty"`
}

// PrimaryImage returns the first image of the product, if any
func (p Product) PrimaryImage() string {
	if p.Image != "" {
		return p.Image
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

// WishlistLine is one saved product
type WishlistLine struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Image     string    `json:"image,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// NewWishlistLine builds the optimistic line for a product
func NewWishlistLine(p Product, at time.Time) WishlistLine {
	return WishlistLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.PrimaryImage(),
		AddedAt:   at,
	}
}
