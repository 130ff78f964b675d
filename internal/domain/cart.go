package domain

// ProductSnapshot is the product data the API embeds in cart lines
type ProductSnapshot struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Slug  string  `json:"slug,omitempty"`
	Price float64 `json:"price"`
	Image string  `json:"image,omitempty"`
	Stock *int    `json:"stock,omitempty"`
}

// CartLine is one line of the shopper's cart
type CartLine struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	VariantID *string         `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity"`
	Product   ProductSnapshot `json:"product"`
}

// Cart is the full cart object returned by every cart endpoint
type Cart struct {
	ID    string     `json:"id,omitempty"`
	Items []CartLine `json:"items"`
}

// PersistedCart is the cart cache layout in durable storage
type PersistedCart struct {
	Items []CartLine `json:"items"`
}

// ItemCount returns the total quantity across all lines
func ItemCount(lines []CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Subtotal returns the sum of price times quantity across all lines
func Subtotal(lines []CartLine) float64 {
	total := 0.0
	for _, l := range lines {
		total += l.Product.Price * float64(l.Quantity)
	}
	return total
}
