package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// TokenManager holds the gateway's CSRF token.
// The token is random and lives only in memory. It is rotated whenever the shopper
// signs in or out so a token handed out under one session is useless under the next.
type TokenManager struct {
	mu      sync.RWMutex
	current string
}

// NewTokenManager creates a token manager with a fresh token.
func NewTokenManager() (*TokenManager, error) {
	tm := &TokenManager{}
	if err := tm.Rotate(); err != nil {
		return nil, err
	}
	return tm, nil
}

// Generate creates a cryptographically secure random token as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Current returns the token clients must echo on mutating requests.
func (tm *TokenManager) Current() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.current
}

// Rotate replaces the current token.
func (tm *TokenManager) Rotate() error {
	token, err := tm.Generate()
	if err != nil {
		return err
	}

	tm.mu.Lock()
	tm.current = token
	tm.mu.Unlock()
	return nil
}

// Verify compares submitted against the current token in constant time.
func (tm *TokenManager) Verify(submitted string) error {
	if submitted == "" {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(tm.Current()), []byte(submitted)) {
		return ErrInvalidToken
	}
	return nil
}
