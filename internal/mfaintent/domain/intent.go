package domain

import "time"

// Intent is a pending second-factor binding: proof that the password step succeeded for
// UserID, usable only to submit a second-factor code. At most one exists per user.
// Consumed (deleted) when the second factor succeeds.
type Intent struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ActiveAt reports whether the intent can still be used at t.
func (i *Intent) ActiveAt(t time.Time) bool {
	return i != nil && t.Before(i.ExpiresAt)
}
