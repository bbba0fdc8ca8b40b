package repository

import (
	"context"
	"time"

	"twofactor-session/internal/mfa/domain"
)

// Repository defines persistence for recovery codes.
type Repository interface {
	// ReplaceForUser deletes every existing code for the user and inserts codes, atomically.
	ReplaceForUser(ctx context.Context, userID string, codes []*domain.RecoveryCode) error
	// FindUnused returns the unused code matching (userID, codeHash), or nil if none.
	FindUnused(ctx context.Context, userID, codeHash string) (*domain.RecoveryCode, error)
	// MarkUsed flips used to true only if it is still false. Returns true for exactly one caller.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteForUser(ctx context.Context, userID string) error
	CountUnused(ctx context.Context, userID string) (int, error)
}
