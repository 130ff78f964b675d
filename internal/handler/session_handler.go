package handler

import (
	"net/http"

	"velancis-storefront/internal/session"
)

// SessionHandler serves sign-in, sign-out and the current session
type SessionHandler struct {
	session *session.Store
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(s *session.Store) *SessionHandler {
	return &SessionHandler{session: s}
}

// LoginRequest carries the code and state Google redirected back with
type LoginRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// LoginURLResponse is where the view sends the shopper to sign in
type LoginURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// Get returns the current session view
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.View())
}

// LoginURL starts a Google sign-in
func (h *SessionHandler) LoginURL(w http.ResponseWriter, r *http.Request) {
	url, state, err := h.session.LoginURL()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginURLResponse{URL: url, State: state})
}

// Login exchanges the OAuth code for a session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.session.VerifyState(req.State); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.session.Login(r.Context(), req.Code); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.session.View())
}

// Logout ends the session. It always succeeds locally.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())
	writeJSON(w, http.StatusOK, h.session.View())
}

// Me reloads the user profile
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	if err := h.session.FetchCurrentUser(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.View())
}
