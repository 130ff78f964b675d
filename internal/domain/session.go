package domain

import (
	"errors"
)

var (
	ErrLoginRequired = errors.New("login required")
	ErrInvalidInput  = errors.New("invalid input")
)

// AuthStatus is the position of a session in its login lifecycle
type AuthStatus string

const (
	StatusUnauthenticated AuthStatus = "unauthenticated"
	StatusAuthenticating  AuthStatus = "authenticating"
	StatusAuthenticated   AuthStatus = "authenticated"
)

// User is the shopper profile returned by the API
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Session is the client-side view of the shopper's authentication
type Session struct {
	User            *User      `json:"user"`
	AccessToken     string     `json:"accessToken"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	Status          AuthStatus `json:"status"`
	IsLoading       bool       `json:"isLoading"`
}

// PersistedSession is the subset of Session written to durable storage.
// Loading flags and status are derived on restore.
type PersistedSession struct {
	AccessToken     string `json:"accessToken"`
	User            *User  `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Persisted returns the durable part of the session
func (s Session) Persisted() PersistedSession {
	return PersistedSession{
		AccessToken:     s.AccessToken,
		User:            s.User,
		IsAuthenticated: s.IsAuthenticated,
	}
}

// SessionFromPersisted rebuilds a session from storage. IsLoading is always false.
func SessionFromPersisted(p PersistedSession) Session {
	s := Session{
		AccessToken:     p.AccessToken,
		User:            p.User,
		IsAuthenticated: p.IsAuthenticated,
		Status:          StatusUnauthenticated,
	}
	if p.IsAuthenticated {
		s.Status = StatusAuthenticated
	}
	return s
}
