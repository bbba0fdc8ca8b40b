package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"twofactor-session/internal/db"
	"twofactor-session/internal/db/migrate"
	"twofactor-session/internal/mfaintent/domain"
)

// openTestDB requires a real database; skipped unless DATABASE_URL is set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	conn, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Run(dsn, migrate.Up); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return conn
}

func insertUser(t *testing.T, conn *sql.DB) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := conn.Exec(`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`,
		id, id+"@intent.test"); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() { _, _ = conn.Exec(`DELETE FROM users WHERE id = $1`, id) })
	return id
}

func newIntent(userID string, now time.Time) *domain.Intent {
	return &domain.Intent{ID: uuid.New().String(), UserID: userID, CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute)}
}

func TestPostgresRepository_CreateSupersedesPrevious(t *testing.T) {
	conn := openTestDB(t)
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	userID := insertUser(t, conn)
	now := time.Now().UTC().Truncate(time.Second)

	first := newIntent(userID, now)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second := newIntent(userID, now.Add(time.Second))
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	if got, err := repo.GetByID(ctx, first.ID); err != nil || got != nil {
		t.Fatalf("GetByID(first) = %+v, %v; want nil", got, err)
	}
	got, err := repo.GetByID(ctx, second.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID(second) = %+v, %v", got, err)
	}
	if got.UserID != userID || !got.ExpiresAt.Equal(second.ExpiresAt) {
		t.Errorf("GetByID(second) = %+v, want %+v", got, second)
	}
	if ok, err := repo.Delete(ctx, first.ID); err != nil || ok {
		t.Errorf("Delete(first) = %v, %v; want false", ok, err)
	}
}

func TestPostgresRepository_DeleteOnce(t *testing.T) {
	conn := openTestDB(t)
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	i := newIntent(insertUser(t, conn), time.Now().UTC())
	if err := repo.Create(ctx, i); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, err := repo.Delete(ctx, i.ID); err != nil || !ok {
		t.Fatalf("first Delete = %v, %v; want true", ok, err)
	}
	if ok, err := repo.Delete(ctx, i.ID); err != nil || ok {
		t.Fatalf("second Delete = %v, %v; want false", ok, err)
	}
}
