package repository

import (
	"context"
	"time"

	"twofactor-session/internal/mfaintent/domain"
)

// DefaultTTL is the default pending second-factor lifetime.
const DefaultTTL = 5 * time.Minute

// Repository defines persistence for pending second-factor intents.
type Repository interface {
	// Create stores the intent and removes any earlier intent for the same user, atomically.
	Create(ctx context.Context, i *domain.Intent) error
	GetByID(ctx context.Context, id string) (*domain.Intent, error)
	// Delete removes the intent. Returns true only if a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
