package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"twofactor-session/internal/user/domain"
)

const uniqueViolation = "23505"

const userColumns = `id, email, name, password_hash, totp_secret, two_factor_enabled, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email (case-insensitive), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
// A unique violation on email is reported as ErrDuplicateEmail.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, totp_secret, two_factor_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, nullString(u.Name), u.PasswordHash, nullString(u.TOTPSecret), u.TwoFactorEnabled, u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

// SetTOTPSecret stores a pending secret while two_factor_enabled is false.
func (r *PostgresRepository) SetTOTPSecret(ctx context.Context, userID, secret string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = $2, updated_at = $3 WHERE id = $1 AND two_factor_enabled = false`,
		userID, secret, time.Now().UTC(),
	)
	return affectedOne(res, err)
}

// EnableTwoFactor sets two_factor_enabled when the stored secret is the one the caller verified
// and the flag is still false.
func (r *PostgresRepository) EnableTwoFactor(ctx context.Context, userID, secret string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = true, updated_at = $2
		 WHERE id = $1 AND totp_secret = $3 AND two_factor_enabled = false`,
		userID, time.Now().UTC(), secret,
	)
	return affectedOne(res, err)
}

// DisableTwoFactor clears the secret and the flag. No-op for unknown users.
func (r *PostgresRepository) DisableTwoFactor(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = NULL, two_factor_enabled = false, updated_at = $2 WHERE id = $1`,
		userID, time.Now().UTC(),
	)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u      domain.User
		name   sql.NullString
		secret sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &name, &u.PasswordHash, &secret, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	u.TOTPSecret = secret.String
	return &u, nil
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
