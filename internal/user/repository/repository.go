package repository

import (
	"context"
	"errors"

	"twofactor-session/internal/user/domain"
)

// ErrDuplicateEmail is returned by Create when another user already has the email
// (case-insensitive).
var ErrDuplicateEmail = errors.New("email already registered")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetTOTPSecret stores a pending secret only while two-factor is not enabled. Returns false if no row was updated.
	SetTOTPSecret(ctx context.Context, userID, secret string) (bool, error)
	// EnableTwoFactor flips the flag only while the stored secret still equals secret.
	// Returns false if no row was updated.
	EnableTwoFactor(ctx context.Context, userID, secret string) (bool, error)
	// DisableTwoFactor clears the secret and the flag.
	DisableTwoFactor(ctx context.Context, userID string) error
}
