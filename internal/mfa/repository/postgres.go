package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"twofactor-session/internal/mfa/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a recovery code repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ReplaceForUser deletes the user's existing codes and inserts the new batch in one transaction.
func (r *PostgresRepository) ReplaceForUser(ctx context.Context, userID string, codes []*domain.RecoveryCode) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recovery_codes (id, user_id, code_hash, used, created_at) VALUES ($1, $2, $3, false, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range codes {
		if _, err = stmt.ExecContext(ctx, c.ID, userID, c.CodeHash, c.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FindUnused returns the unused code for (userID, codeHash), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindUnused(ctx context.Context, userID, codeHash string) (*domain.RecoveryCode, error) {
	var (
		c      domain.RecoveryCode
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, code_hash, used, used_at, created_at FROM recovery_codes
		 WHERE user_id = $1 AND code_hash = $2 AND used = false`,
		userID, codeHash,
	).Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Used, &usedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if usedAt.Valid {
		c.UsedAt = &usedAt.Time
	}
	return &c, nil
}

// MarkUsed is a conditional update on used = false; concurrent callers race on the row
// lock and only the first sees one affected row.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recovery_codes SET used = true, used_at = $2 WHERE id = $1 AND used = false`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteForUser removes every code for the user.
func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID)
	return err
}

// CountUnused returns how many codes the user has left.
func (r *PostgresRepository) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM recovery_codes WHERE user_id = $1 AND used = false`, userID).Scan(&n)
	return n, err
}
