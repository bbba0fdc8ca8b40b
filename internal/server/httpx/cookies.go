package httpx

import (
	"net/http"
	"time"
)

const (
	// SessionCookie carries the opaque session id.
	SessionCookie = "session_id"
	// PendingCookie carries the signed pending second-factor token.
	PendingCookie = "pending_2fa"
)

// Cookies writes the auth cookies. Secure is set in production only.
type Cookies struct {
	Secure bool
	now    func() time.Time
}

// NewCookies returns a cookie writer.
func NewCookies(secure bool) Cookies {
	return Cookies{Secure: secure, now: time.Now}
}

func (c Cookies) base(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSession sets the session cookie to expire with the session.
func (c Cookies) SetSession(w http.ResponseWriter, sessionID string, expiresAt time.Time) {
	ck := c.base(SessionCookie, sessionID)
	ck.Expires = expiresAt.UTC()
	http.SetCookie(w, ck)
}

// ClearSession expires the session cookie.
func (c Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, SessionCookie)
}

// SetPending sets the pending second-factor cookie with Max-Age equal to the remaining token lifetime.
func (c Cookies) SetPending(w http.ResponseWriter, token string, expiresAt time.Time) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	maxAge := int(expiresAt.Sub(now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	ck := c.base(PendingCookie, token)
	ck.MaxAge = maxAge
	http.SetCookie(w, ck)
}

// ClearPending expires the pending second-factor cookie.
func (c Cookies) ClearPending(w http.ResponseWriter) {
	c.clear(w, PendingCookie)
}

func (c Cookies) clear(w http.ResponseWriter, name string) {
	ck := c.base(name, "")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(w, ck)
}

// Read returns the named cookie's value, or "" when absent.
func Read(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
