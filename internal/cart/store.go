// Package cart mirrors the shopper's server-side cart. Every mutation is a round trip
// and the server's answer replaces the whole local list.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"velancis-storefront/internal/apiclient"
	"velancis-storefront/internal/domain"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/observability"
	"velancis-storefront/internal/storage"
)

const persistTimeout = 5 * time.Second

// API is the part of the storefront client the cart needs
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Session is the read side of the session store plus the logout it triggers on 401
type Session interface {
	IsAuthenticated() bool
	Logout(ctx context.Context)
}

// AddRequest describes a product to put in the cart
type AddRequest struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Quantity  int     `json:"quantity"`
}

// View is the cart as shown to views
type View struct {
	Items     []domain.CartLine `json:"items"`
	Count     int               `json:"count"`
	Subtotal  float64           `json:"subtotal"`
	IsLoading bool              `json:"isLoading"`
}

// Store holds the cart lines of the current session
type Store struct {
	api       API
	session   Session
	storage   storage.Storage
	publisher events.Publisher

	mu       sync.RWMutex
	items    []domain.CartLine
	inFlight int
	issued   uint64
	applied  uint64

	persistMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithPublisher sends a CartChanged event after every change
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// NewStore returns an empty cart bound to the session. Call Restore to load the cached
// lines.
func NewStore(api API, session Session, store storage.Storage, opts ...Option) *Store {
	s := &Store{
		api:       api,
		session:   session,
		storage:   store,
		publisher: events.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the cached cart from durable storage. Call it after the session has
// been restored: while logged out any leftover cache is deleted instead.
func (s *Store) Restore(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		if err := s.storage.Delete(ctx, storage.CartKey); err != nil {
			return fmt.Errorf("drop cart cache: %w", err)
		}
		return nil
	}

	var persisted domain.PersistedCart
	found, err := storage.LoadJSON(ctx, s.storage, storage.CartKey, &persisted)
	if err != nil || !found {
		return err
	}

	s.mu.Lock()
	s.items = persisted.Items
	s.mu.Unlock()
	return nil
}

// Items returns a copy of the current lines
func (s *Store) Items() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CartLine(nil), s.items...)
}

func (s *Store) Count() int {
	return domain.ItemCount(s.Items())
}

func (s *Store) Subtotal() float64 {
	return domain.Subtotal(s.Items())
}

func (s *Store) View() View {
	s.mu.RLock()
	items := append([]domain.CartLine{}, s.items...)
	loading := s.inFlight > 0
	s.mu.RUnlock()

	return View{
		Items:     items,
		Count:     domain.ItemCount(items),
		Subtotal:  domain.Subtotal(items),
		IsLoading: loading,
	}
}

// AddItem puts a product in the cart
func (s *Store) AddItem(ctx context.Context, req AddRequest) error {
	if req.ProductID == "" || req.Quantity < 1 {
		return fmt.Errorf("add to cart: %w", domain.ErrInvalidInput)
	}
	return s.mutate(ctx, "add", "Failed to add item to cart", func(ctx context.Context, out *domain.Cart) error {
		return s.api.Post(ctx, "/cart", req, out)
	})
}

// RemoveItem deletes a cart line
func (s *Store) RemoveItem(ctx context.Context, lineID string) error {
	if lineID == "" {
		return fmt.Errorf("remove from cart: %w", domain.ErrInvalidInput)
	}
	return s.mutate(ctx, "remove", "Failed to remove item from cart", func(ctx context.Context, out *domain.Cart) error {
		return s.api.Delete(ctx, "/cart/"+url.PathEscape(lineID), out)
	})
}

// UpdateQuantity sets the quantity of a cart line
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if lineID == "" || quantity < 1 {
		return fmt.Errorf("update cart quantity: %w", domain.ErrInvalidInput)
	}
	body := map[string]int{"quantity": quantity}
	return s.mutate(ctx, "update", "Failed to update cart", func(ctx context.Context, out *domain.Cart) error {
		return s.api.Put(ctx, "/cart/"+url.PathEscape(lineID), body, out)
	})
}

// FetchCart reloads the cart. It does nothing while logged out and only logs failures.
func (s *Store) FetchCart(ctx context.Context) {
	if !s.session.IsAuthenticated() {
		return
	}

	seq := s.begin()
	var cart domain.Cart
	err := s.api.Get(ctx, "/cart", &cart)
	s.end()

	if err != nil {
		observability.Component(ctx, "cart").Error("failed to fetch cart",
			slog.String("error", err.Error()))
		return
	}
	if s.apply(ctx, seq, cart.Items) {
		observability.Component(ctx, "cart").Debug("discarding stale cart reload",
			slog.Uint64("seq", seq))
	}
}

// Clear drops the local cart. Responses still in flight are discarded.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = nil
	s.applied = s.issued + 1
	s.mu.Unlock()

	s.persist(ctx)
	s.publisher.Publish(ctx, events.New(events.CartChanged, s.View()))
}

func (s *Store) mutate(ctx context.Context, op, fallback string, call func(context.Context, *domain.Cart) error) error {
	logger := observability.Component(ctx, "cart")

	if !s.session.IsAuthenticated() {
		logger.Warn("cart change refused while logged out", slog.String("operation", op))
		observability.StoreMutationsTotal.WithLabelValues("cart", op, "refused").Inc()
		return errLoginRequired
	}

	seq := s.begin()
	var cart domain.Cart
	err := call(ctx, &cart)
	s.end()

	if err != nil {
		observability.StoreMutationsTotal.WithLabelValues("cart", op, "failure").Inc()
		logger.Error("cart change failed",
			slog.String("operation", op),
			slog.String("error", err.Error()))

		// A failed refresh has already cleared the session; a 401 on the retried
		// request has not.
		if apiclient.IsUnauthorized(err) {
			s.session.Logout(ctx)
		}
		return classify(err, fallback)
	}

	observability.StoreMutationsTotal.WithLabelValues("cart", op, "success").Inc()
	if s.apply(ctx, seq, cart.Items) {
		// The server handled this request after a newer one whose answer is already
		// applied, so neither answer is the full server state.
		logger.Debug("cart response arrived out of order, reloading", slog.Uint64("seq", seq))
		s.FetchCart(ctx)
	}
	return nil
}

func (s *Store) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.inFlight++
	return s.issued
}

func (s *Store) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
}

// apply replaces the local lines with the server's. It reports stale when a response
// issued later has already been applied; the lines are left alone then. Responses
// arriving after logout are dropped.
func (s *Store) apply(ctx context.Context, seq uint64, items []domain.CartLine) (stale bool) {
	if !s.session.IsAuthenticated() {
		return false
	}

	s.mu.Lock()
	if seq < s.applied {
		s.mu.Unlock()
		return true
	}
	s.applied = seq
	if items == nil {
		items = []domain.CartLine{}
	}
	s.items = items
	s.mu.Unlock()

	s.persist(ctx)
	s.publisher.Publish(ctx, events.New(events.CartChanged, s.View()))
	return false
}

func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := storage.SaveJSON(pctx, s.storage, storage.CartKey, domain.PersistedCart{Items: s.Items()}); err != nil {
		observability.Component(ctx, "cart").Error("failed to persist cart",
			slog.String("error", err.Error()))
	}
}
