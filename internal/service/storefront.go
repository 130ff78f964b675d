package service

import (
	"context"
	"fmt"
	"log/slog"

	"velancis-storefront/internal/apiclient"
	"velancis-storefront/internal/cart"
	"velancis-storefront/internal/domain"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/observability"
	"velancis-storefront/internal/session"
	"velancis-storefront/internal/storage"
	"velancis-storefront/internal/wishlist"
)

// Storefront ties the API client and the three stores of one shopper together
type Storefront struct {
	Client   *apiclient.Client
	Session  *session.Store
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Storage  storage.Storage
}

// NewStorefront binds the client to a new session store and registers the login and
// logout hooks that keep cart and wishlist in step with the session.
func NewStorefront(client *apiclient.Client, store storage.Storage, publisher events.Publisher, consent *session.Consent) *Storefront {
	if publisher == nil {
		publisher = events.Discard{}
	}

	sess := session.NewStore(client, store,
		session.WithPublisher(publisher),
		session.WithConsent(consent),
	)
	client.BindSession(sess)

	c := cart.NewStore(client, sess, store, cart.WithPublisher(publisher))
	w := wishlist.NewStore(client, sess, wishlist.WithPublisher(publisher))

	sess.OnLogin(func(ctx context.Context) {
		c.FetchCart(ctx)
		_ = w.Fetch(ctx)
	})
	sess.OnLogout(func(ctx context.Context) {
		c.Clear(ctx)
		w.Clear(ctx)
	})

	return &Storefront{
		Client:   client,
		Session:  sess,
		Cart:     c,
		Wishlist: w,
		Storage:  store,
	}
}

// Restore rehydrates session and cart from storage. A restored authenticated session
// also reloads the wishlist, which is never persisted.
func (s *Storefront) Restore(ctx context.Context) error {
	if err := s.Session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if err := s.Cart.Restore(ctx); err != nil {
		return fmt.Errorf("restore cart: %w", err)
	}

	if !s.Session.IsAuthenticated() {
		return nil
	}

	if err := s.Wishlist.Fetch(ctx); err != nil {
		observability.Component(ctx, "storefront").Warn("wishlist not loaded on start",
			slog.String("error", err.Error()))
	}
	return nil
}

// Snapshot is the full public state handed to a new event subscriber
type Snapshot struct {
	Session  session.View          `json:"session"`
	Cart     cart.View             `json:"cart"`
	Wishlist []domain.WishlistLine `json:"wishlist"`
}

// Snapshot captures session, cart and wishlist as views see them
func (s *Storefront) Snapshot() Snapshot {
	return Snapshot{
		Session:  s.Session.View(),
		Cart:     s.Cart.View(),
		Wishlist: s.Wishlist.Items(),
	}
}
