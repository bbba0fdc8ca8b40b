package domain

import "time"

// Session is a server-side login record. ID is the opaque bearer token carried in the
// session cookie and also the primary key.
type Session struct {
	ID     string
	UserID string
	// IPAddress and UserAgent are advisory client metadata; never used for authorization.
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Metadata is the client information captured when a session is created.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// ActiveAt reports whether the session is still valid at t (t strictly before expiry).
func (s *Session) ActiveAt(t time.Time) bool {
	return s != nil && t.Before(s.ExpiresAt)
}
