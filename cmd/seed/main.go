// seed inserts development users for local testing. Run via go run ./cmd/seed.
// Idempotent: a user whose email already exists is left untouched.
//
// Two users are created: one with password-only login and one with two-factor enabled, whose
// otpauth URI and recovery codes are printed once.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"twofactor-session/internal/config"
	"twofactor-session/internal/db"
	"twofactor-session/internal/mfa"
	mfarepo "twofactor-session/internal/mfa/repository"
	"twofactor-session/internal/security"
	userdomain "twofactor-session/internal/user/domain"
	userrepo "twofactor-session/internal/user/repository"
)

const (
	devUserEmail       = "dev@example.com"
	twoFactorUserEmail = "dev-2fa@example.com"
	devPassword        = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	if _, created := ensureUser(ctx, users, "Dev User", devUserEmail, passwordHash); created {
		fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	}

	u, created := ensureUser(ctx, users, "Two-Factor User", twoFactorUserEmail, passwordHash)
	if !created {
		log.Println("Seed already applied. Skipping.")
		return
	}

	totp := mfa.NewTOTPManager(cfg.TOTPIssuer)
	secret, err := totp.GenerateSecret()
	if err != nil {
		log.Fatalf("generate secret: %v", err)
	}
	if _, err := users.SetTOTPSecret(ctx, u.ID, secret); err != nil {
		log.Fatalf("set totp secret: %v", err)
	}
	if _, err := users.EnableTwoFactor(ctx, u.ID, secret); err != nil {
		log.Fatalf("enable two-factor: %v", err)
	}
	codes, err := mfa.NewRecoveryCodeManager(mfarepo.NewPostgresRepository(conn), cfg.RecoveryCodeCount).IssueBatch(ctx, u.ID)
	if err != nil {
		log.Fatalf("issue recovery codes: %v", err)
	}
	uri, err := totp.EnrollmentURI(u.Email, totp.Issuer(), secret)
	if err != nil {
		log.Fatalf("enrollment uri: %v", err)
	}

	fmt.Printf("Two-factor login: %s / %s\n", twoFactorUserEmail, devPassword)
	fmt.Printf("  otpauth URI: %s\n", uri)
	fmt.Println("  recovery codes:")
	for _, c := range codes {
		fmt.Printf("    %s\n", c)
	}
	log.Println("Seed completed successfully.")
}

// ensureUser creates the user unless the email is already taken. created is false when it existed.
func ensureUser(ctx context.Context, users userrepo.Repository, name, email, passwordHash string) (*userdomain.User, bool) {
	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		log.Fatalf("seed check %s: %v", email, err)
	}
	if existing != nil {
		return existing, false
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        userdomain.NormalizeEmail(email),
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("create %s: %v", email, err)
	}
	return u, true
}
