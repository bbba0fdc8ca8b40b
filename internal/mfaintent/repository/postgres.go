package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"twofactor-session/internal/mfaintent/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a pending intent repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the intent, superseding the user's previous one. The intent must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Intent) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM pending_two_factor WHERE user_id = $1`, i.UserID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO pending_two_factor (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		i.ID, i.UserID, i.CreatedAt, i.ExpiresAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID returns the intent for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Intent, error) {
	var i domain.Intent
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM pending_two_factor WHERE id = $1`, id,
	).Scan(&i.ID, &i.UserID, &i.CreatedAt, &i.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &i, nil
}

// Delete removes the intent by id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_two_factor WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteExpired removes intents whose expiry is at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_two_factor WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
