package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"velancis-storefront/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID     string
	Email  string
	Name   string
	Avatar string
	Role   string
}

// NewTestUser creates a test shopper with sensible defaults
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:   nextID("user"),
		Name: fmt.Sprintf("Shopper %d", idCounter.Load()),
		Role: "customer",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = fmt.Sprintf("%s@example.com", o.ID)
	}

	return &domain.User{
		ID:     o.ID,
		Email:  o.Email,
		Name:   o.Name,
		Avatar: o.Avatar,
		Role:   o.Role,
	}
}

// WithUserID sets the user ID
func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithRole sets the user role
func WithRole(role string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Role = role
	}
}

// NewTestProduct creates a catalogue product as a view would pass it to the wishlist
func NewTestProduct(price float64) domain.Product {
	id := nextID("prod")
	return domain.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  price,
		Images: []string{"https://cdn.example.com/" + id + ".jpg"},
	}
}

// CartLineOptions allows customizing cart line fixture creation
type CartLineOptions struct {
	ID        string
	ProductID string
	VariantID *string
	Quantity  int
	Price     float64
	Stock     *int
}

// NewTestCartLine creates a cart line with an embedded product snapshot
func NewTestCartLine(opts ...func(*CartLineOptions)) domain.CartLine {
	o := &CartLineOptions{
		ID:        nextID("line"),
		ProductID: nextID("prod"),
		Quantity:  1,
		Price:     10,
	}

	for _, opt := range opts {
		opt(o)
	}

	return domain.CartLine{
		ID:        o.ID,
		ProductID: o.ProductID,
		VariantID: o.VariantID,
		Quantity:  o.Quantity,
		Product: domain.ProductSnapshot{
			ID:    o.ProductID,
			Name:  "Product " + o.ProductID,
			Slug:  "product-" + o.ProductID,
			Price: o.Price,
			Stock: o.Stock,
		},
	}
}

// WithLineID sets the cart line ID
func WithLineID(id string) func(*CartLineOptions) {
	return func(o *CartLineOptions) {
		o.ID = id
	}
}

// WithProductID sets the product of the line
func WithProductID(id string) func(*CartLineOptions) {
	return func(o *CartLineOptions) {
		o.ProductID = id
	}
}

// WithVariant sets the variant of the line
func WithVariant(id string) func(*CartLineOptions) {
	return func(o *CartLineOptions) {
		o.VariantID = &id
	}
}

// WithQuantity sets the line quantity
func WithQuantity(q int) func(*CartLineOptions) {
	return func(o *CartLineOptions) {
		o.Quantity = q
	}
}

// WithPrice sets the unit price of the line's product
func WithPrice(p float64) func(*CartLineOptions) {
	return func(o *CartLineOptions) {
		o.Price = p
	}
}

// NewTestWishlistLine creates a saved product added at the given time
func NewTestWishlistLine(at time.Time) domain.WishlistLine {
	return domain.NewWishlistLine(NewTestProduct(25), at)
}

// NewTestCartLines creates count distinct cart lines
func NewTestCartLines(count int) []domain.CartLine {
	lines := make([]domain.CartLine, count)
	for i := 0; i < count; i++ {
		lines[i] = NewTestCartLine()
	}
	return lines
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
