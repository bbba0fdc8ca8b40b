package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	identityhandler "twofactor-session/internal/identity/handler"
	"twofactor-session/internal/identity/service"
	"twofactor-session/internal/security"
	"twofactor-session/internal/server/httpx"
)

// SessionHandler serves the self-service session list and revocation endpoints.
// Sessions are addressed by their fingerprint; raw session ids are bearer credentials and
// never appear in a response body.
type SessionHandler struct {
	auth    *service.AuthService
	cookies httpx.Cookies
	logger  *zap.Logger
}

// NewSessionHandler returns a handler. If auth is nil every endpoint answers 501.
func NewSessionHandler(auth *service.AuthService, cookies httpx.Cookies, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{auth: auth, cookies: cookies, logger: logger}
}

type sessionResponse struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

type listResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

// List returns the caller's active sessions, newest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		httpx.Error(w, http.StatusNotImplemented, "auth service not configured")
		return
	}
	views, err := h.auth.ListSessions(r.Context(), identityhandler.SessionID(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	out := listResponse{Sessions: make([]sessionResponse, 0, len(views))}
	for _, v := range views {
		out.Sessions = append(out.Sessions, sessionViewToJSON(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Revoke deletes one of the caller's sessions by fingerprint. Revoking the current session,
// when policy allows it, also clears the cookie.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		httpx.Error(w, http.StatusNotImplemented, "auth service not configured")
		return
	}
	sid := identityhandler.SessionID(r)
	handle := chi.URLParam(r, "id")
	views, err := h.auth.ListSessions(r.Context(), sid)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	target := ""
	for _, v := range views {
		if security.Fingerprint(v.Session.ID) == handle {
			target = v.Session.ID
			break
		}
	}
	if target == "" {
		httpx.WriteError(w, h.logger, service.ErrSessionNotFound)
		return
	}
	clearCookie, err := h.auth.RevokeSession(r.Context(), sid, target)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if clearCookie {
		h.cookies.ClearSession(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionViewToJSON(v service.SessionView) sessionResponse {
	return sessionResponse{
		ID:        security.Fingerprint(v.Session.ID),
		IPAddress: v.Session.IPAddress,
		UserAgent: v.Session.UserAgent,
		CreatedAt: v.Session.CreatedAt,
		ExpiresAt: v.Session.ExpiresAt,
		Current:   v.Current,
	}
}
