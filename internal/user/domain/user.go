package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the core user entity. PasswordHash and TOTPSecret are secret material and are
// never serialized to clients.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	// TOTPSecret is the base32 TOTP secret. Set during enrollment while TwoFactorEnabled is
	// still false (pending), kept once enabled, cleared when two-factor is disabled.
	TOTPSecret       string
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeEmail lower-cases and trims an email so lookups and the unique index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPendingTOTP reports whether an enrollment secret is stored but not yet activated.
func (u *User) HasPendingTOTP() bool {
	return u.TOTPSecret != "" && !u.TwoFactorEnabled
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.TwoFactorEnabled && u.TOTPSecret == "" {
		return errors.New("two-factor enabled without a secret")
	}
	return nil
}
