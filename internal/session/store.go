// Package session owns the shopper's authentication state. It is the only writer of
// session fields; the API client reports token refreshes through SessionBinding.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"velancis-storefront/internal/domain"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/observability"
	"velancis-storefront/internal/storage"
)

const persistTimeout = 5 * time.Second

// API is the part of the storefront client the session store needs
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Hook runs after a login or logout has been committed
type Hook func(ctx context.Context)

// View is the session as shown to views. The access token never leaves the gateway.
type View struct {
	User            *domain.User      `json:"user"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	Status          domain.AuthStatus `json:"status"`
	IsLoading       bool              `json:"isLoading"`
}

// Store holds the current session
type Store struct {
	api       API
	storage   storage.Storage
	publisher events.Publisher
	consent   *Consent

	mu       sync.RWMutex
	state    domain.Session
	onLogin  []Hook
	onLogout []Hook

	persistMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithPublisher sends a SessionChanged event after every change
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithConsent enables LoginURL
func WithConsent(c *Consent) Option {
	return func(s *Store) {
		s.consent = c
	}
}

// NewStore creates an empty, unauthenticated session store
func NewStore(api API, store storage.Storage, opts ...Option) *Store {
	s := &Store{
		api:       api,
		storage:   store,
		publisher: events.Discard{},
		state:     domain.Session{Status: domain.StatusUnauthenticated},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnLogin registers a hook run after every successful login
func (s *Store) OnLogin(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogin = append(s.onLogin, h)
}

// OnLogout registers a hook run after the session has been cleared
func (s *Store) OnLogout(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, h)
}

// Restore rehydrates the session from durable storage. Loading flags always start false.
func (s *Store) Restore(ctx context.Context) error {
	var persisted domain.PersistedSession
	found, err := storage.LoadJSON(ctx, s.storage, storage.SessionKey, &persisted)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	s.mu.Lock()
	s.state = domain.SessionFromPersisted(persisted)
	s.mu.Unlock()

	observability.Component(ctx, "session").Info("session restored",
		slog.Bool("authenticated", persisted.IsAuthenticated))
	return nil
}

// Snapshot returns a copy of the full session, token included
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.state
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	return snap
}

// View returns the session without its token
func (s *Store) View() View {
	snap := s.Snapshot()
	return View{
		User:            snap.User,
		IsAuthenticated: snap.IsAuthenticated,
		Status:          snap.Status,
		IsLoading:       snap.IsLoading,
	}
}

// ShopperID returns the signed-in user's ID, empty while logged out
func (s *Store) ShopperID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.IsAuthenticated || s.state.User == nil {
		return ""
	}
	return s.state.User.ID
}

// AccessToken returns the token to attach to the next request
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	User        *domain.User `json:"user"`
}

// Login exchanges a Google OAuth code for a session. On failure the session ends
// unauthenticated and the error is returned.
func (s *Store) Login(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("login code is empty: %w", domain.ErrInvalidInput)
	}

	logger := observability.Component(ctx, "session")

	var wasAuthenticated bool
	s.update(ctx, func(st *domain.Session) {
		wasAuthenticated = st.IsAuthenticated
		st.Status = domain.StatusAuthenticating
		st.IsLoading = true
	})

	var resp loginResponse
	err := s.api.Post(ctx, "/auth/google", map[string]string{"code": code}, &resp)
	if err == nil && resp.AccessToken == "" {
		err = fmt.Errorf("login response carried no access token")
	}
	if err != nil {
		logger.Error("login failed", slog.String("error", err.Error()))
		if wasAuthenticated {
			// the previous shopper's cart and wishlist go with their session
			s.clear(ctx)
		} else {
			s.update(ctx, func(st *domain.Session) {
				*st = domain.Session{Status: domain.StatusUnauthenticated}
			})
		}
		return fmt.Errorf("login failed: %w", err)
	}

	s.update(ctx, func(st *domain.Session) {
		*st = domain.Session{
			User:            resp.User,
			AccessToken:     resp.AccessToken,
			IsAuthenticated: true,
			Status:          domain.StatusAuthenticated,
		}
	})

	if resp.User != nil {
		ctx = observability.WithShopperID(ctx, resp.User.ID)
	}
	logger.Info("shopper logged in")

	s.runHooks(ctx, s.loginHooks())
	return nil
}

// Logout tells the API to drop the refresh cookie, then clears the local session.
// The remote call is best effort: the local session is cleared whatever it returns.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Post(ctx, "/auth/logout", nil, nil); err != nil {
		observability.Component(ctx, "session").Warn("remote logout failed, clearing local session anyway",
			slog.String("error", err.Error()))
	}
	s.clear(ctx)
}

// FetchCurrentUser reloads the user profile. Without a token it does nothing. A failure
// is logged and returned but leaves the session as it was.
func (s *Store) FetchCurrentUser(ctx context.Context) error {
	if s.AccessToken() == "" {
		return nil
	}

	var raw json.RawMessage
	if err := s.api.Get(ctx, "/auth/me", &raw); err != nil {
		observability.Component(ctx, "session").Error("failed to fetch current user",
			slog.String("error", err.Error()))
		return err
	}

	user, err := decodeUser(raw)
	if err != nil {
		observability.Component(ctx, "session").Error("failed to decode current user",
			slog.String("error", err.Error()))
		return err
	}

	s.update(ctx, func(st *domain.Session) {
		st.User = user
	})
	return nil
}

// decodeUser accepts both {"user": {...}} and a bare user object
func decodeUser(raw json.RawMessage) (*domain.User, error) {
	var wrapped struct {
		User *domain.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}

	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("decode user: response has no user id")
	}
	return &user, nil
}

// TokenRefreshed stores a freshly minted access token
func (s *Store) TokenRefreshed(ctx context.Context, token string) {
	s.update(ctx, func(st *domain.Session) {
		st.AccessToken = token
	})
}

// RefreshFailed clears the session; the refresh cookie is gone or invalid
func (s *Store) RefreshFailed(ctx context.Context, cause error) {
	observability.Component(ctx, "session").Warn("session expired",
		slog.String("cause", cause.Error()))
	s.clear(ctx)
}

func (s *Store) clear(ctx context.Context) {
	s.update(ctx, func(st *domain.Session) {
		*st = domain.Session{Status: domain.StatusUnauthenticated}
	})
	s.runHooks(ctx, s.logoutHooks())
}

// update applies fn under the lock, then persists and publishes the new state
func (s *Store) update(ctx context.Context, fn func(*domain.Session)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()

	s.persist(ctx)
	s.publisher.Publish(ctx, events.New(events.SessionChanged, s.View()))
}

func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	// A cancelled caller must not leave a stale session on disk.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	persisted := s.Snapshot().Persisted()
	if err := storage.SaveJSON(pctx, s.storage, storage.SessionKey, persisted); err != nil {
		observability.Component(ctx, "session").Error("failed to persist session",
			slog.String("error", err.Error()))
	}
}

func (s *Store) loginHooks() []Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Hook(nil), s.onLogin...)
}

func (s *Store) logoutHooks() []Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Hook(nil), s.onLogout...)
}

func (s *Store) runHooks(ctx context.Context, hooks []Hook) {
	for _, h := range hooks {
		h(ctx)
	}
}
