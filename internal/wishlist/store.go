// Package wishlist mirrors the shopper's saved products. Changes are applied locally
// first and then confirmed, undone or resynchronised depending on the API's answer.
package wishlist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"velancis-storefront/internal/domain"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/observability"
)

// API is the part of the storefront client the wishlist needs
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Session is the read side of the session store
type Session interface {
	IsAuthenticated() bool
}

// Store holds the wishlist lines of the current session
type Store struct {
	api       API
	session   Session
	publisher events.Publisher
	now       func() time.Time

	mu    sync.RWMutex
	items []domain.WishlistLine
}

// Option configures a Store
type Option func(*Store)

// WithPublisher sends a WishlistChanged event after every change
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithClock overrides the time stamped on optimistic lines
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns an empty wishlist. It is never persisted; Fetch loads it after login.
func NewStore(api API, session Session, opts ...Option) *Store {
	s := &Store{
		api:       api,
		session:   session,
		publisher: events.Discard{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Items returns a copy of the current lines
func (s *Store) Items() []domain.WishlistLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.WishlistLine{}, s.items...)
}

// IsInWishlist reports whether productID is saved. No network call.
func (s *Store) IsInWishlist(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.items, productID) >= 0
}

// AddItem saves a product. The line appears immediately and is taken out again if
// the API rejects it.
func (s *Store) AddItem(ctx context.Context, p domain.Product) error {
	if !s.session.IsAuthenticated() {
		observability.StoreMutationsTotal.WithLabelValues("wishlist", "add", "refused").Inc()
		return domain.ErrLoginRequired
	}
	if p.ID == "" {
		return fmt.Errorf("add to wishlist: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if indexOf(s.items, p.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.items = append(s.items, domain.NewWishlistLine(p, s.now()))
	s.mu.Unlock()
	s.changed(ctx)

	err := s.api.Post(ctx, "/wishlist", map[string]string{"productId": p.ID}, nil)
	if err == nil {
		observability.StoreMutationsTotal.WithLabelValues("wishlist", "add", "success").Inc()
		return nil
	}

	observability.StoreMutationsTotal.WithLabelValues("wishlist", "add", "failure").Inc()
	observability.WishlistRollbacksTotal.WithLabelValues("add", "rollback").Inc()
	observability.Component(ctx, "wishlist").Error("failed to add to wishlist, rolling back",
		slog.String("product_id", p.ID),
		slog.String("error", err.Error()))

	s.mu.Lock()
	if i := indexOf(s.items, p.ID); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
	s.mu.Unlock()
	s.changed(ctx)

	return fmt.Errorf("add to wishlist: %w", err)
}

// RemoveItem drops a product. The line disappears immediately; if the API rejects the
// removal the wishlist is reloaded from the server, and if that reload fails too the
// line is put back.
func (s *Store) RemoveItem(ctx context.Context, productID string) error {
	if !s.session.IsAuthenticated() {
		observability.StoreMutationsTotal.WithLabelValues("wishlist", "remove", "refused").Inc()
		return domain.ErrLoginRequired
	}
	if productID == "" {
		return fmt.Errorf("remove from wishlist: %w", domain.ErrInvalidInput)
	}

	var (
		removed *domain.WishlistLine
		at      int
	)
	s.mu.Lock()
	if i := indexOf(s.items, productID); i >= 0 {
		line := s.items[i]
		removed, at = &line, i
		s.items = slices.Delete(s.items, i, i+1)
	}
	s.mu.Unlock()
	s.changed(ctx)

	err := s.api.Delete(ctx, "/wishlist/"+url.PathEscape(productID), nil)
	if err == nil {
		observability.StoreMutationsTotal.WithLabelValues("wishlist", "remove", "success").Inc()
		return nil
	}

	observability.StoreMutationsTotal.WithLabelValues("wishlist", "remove", "failure").Inc()
	logger := observability.Component(ctx, "wishlist")
	logger.Error("failed to remove from wishlist, resynchronising",
		slog.String("product_id", productID),
		slog.String("error", err.Error()))

	if fetchErr := s.Fetch(ctx); fetchErr != nil {
		observability.WishlistRollbacksTotal.WithLabelValues("remove", "rollback").Inc()
		if removed != nil {
			s.restore(*removed, at)
			s.changed(ctx)
		}
	} else {
		observability.WishlistRollbacksTotal.WithLabelValues("remove", "resync").Inc()
	}

	return fmt.Errorf("remove from wishlist: %w", err)
}

func (s *Store) restore(line domain.WishlistLine, at int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.items, line.ProductID) >= 0 {
		return
	}
	at = min(at, len(s.items))
	s.items = slices.Insert(s.items, at, line)
}

// Fetch replaces the local wishlist with the server's. It does nothing while logged out.
func (s *Store) Fetch(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		return nil
	}

	var raw json.RawMessage
	if err := s.api.Get(ctx, "/wishlist", &raw); err != nil {
		observability.Component(ctx, "wishlist").Error("failed to fetch wishlist",
			slog.String("error", err.Error()))
		return err
	}

	items, err := decodeLines(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	s.changed(ctx)
	return nil
}

// Clear drops the local wishlist
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	s.changed(ctx)
}

func (s *Store) changed(ctx context.Context) {
	s.publisher.Publish(ctx, events.New(events.WishlistChanged, s.Items()))
}

// decodeLines accepts a bare array or an object with an items array
func decodeLines(raw json.RawMessage) ([]domain.WishlistLine, error) {
	raw = bytes.TrimSpace(raw)
	items := []domain.WishlistLine{}

	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return items, nil
	}

	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode wishlist: %w", err)
		}
		return items, nil
	}

	var wrapped struct {
		Items []domain.WishlistLine `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode wishlist: %w", err)
	}
	if wrapped.Items != nil {
		items = wrapped.Items
	}
	return items, nil
}

func indexOf(items []domain.WishlistLine, productID string) int {
	return slices.IndexFunc(items, func(l domain.WishlistLine) bool {
		return l.ProductID == productID
	})
}
