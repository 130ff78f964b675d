package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const stateTTL = 10 * time.Minute

var (
	ErrConsentDisabled = errors.New("google sign-in is not configured")
	ErrUnknownState    = errors.New("unknown or expired oauth state")
)

// Consent builds Google consent URLs and remembers the state values it handed out.
// The code that comes back is exchanged by the storefront API, not here.
type Consent struct {
	config *oauth2.Config
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewConsent returns nil when clientID is empty so callers can pass it straight to WithConsent
func NewConsent(clientID, redirectURL string) *Consent {
	if clientID == "" {
		return nil
	}
	return &Consent{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Endpoint:    endpoints.Google,
			Scopes:      []string{"openid", "profile", "email"},
		},
		now:     time.Now,
		pending: make(map[string]time.Time),
	}
}

// URL returns a consent URL and the state it embeds
func (c *Consent) URL() (string, string) {
	state := uuid.NewString()

	c.mu.Lock()
	c.sweep()
	c.pending[state] = c.now().Add(stateTTL)
	c.mu.Unlock()

	url := c.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return url, state
}

// Verify consumes state. Each state is accepted once and only before it expires.
func (c *Consent) Verify(state string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires, ok := c.pending[state]
	if !ok {
		return ErrUnknownState
	}
	delete(c.pending, state)

	if c.now().After(expires) {
		return ErrUnknownState
	}
	return nil
}

func (c *Consent) sweep() {
	now := c.now()
	for state, expires := range c.pending {
		if now.After(expires) {
			delete(c.pending, state)
		}
	}
}

// LoginURL starts a Google sign-in
func (s *Store) LoginURL() (url string, state string, err error) {
	if s.consent == nil {
		return "", "", ErrConsentDisabled
	}
	url, state = s.consent.URL()
	return url, state, nil
}

// VerifyState checks the state echoed back by the consent screen. Without consent
// configured there is nothing to check.
func (s *Store) VerifyState(state string) error {
	if s.consent == nil {
		return nil
	}
	return s.consent.Verify(state)
}
