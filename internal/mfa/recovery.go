package mfa

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"twofactor-session/internal/mfa/domain"
	"twofactor-session/internal/mfa/repository"
	"twofactor-session/internal/security"
)

const (
	// DefaultRecoveryCodeCount is the batch size when none is configured.
	DefaultRecoveryCodeCount = 10
	recoveryCodeBytes        = 8
)

// RecoveryCodeManager issues and consumes single-use backup codes. Codes are 16 lowercase
// hex characters; only their SHA-256 is persisted.
type RecoveryCodeManager struct {
	repo  repository.Repository
	count int
	now   func() time.Time
}

// NewRecoveryCodeManager returns a manager issuing count codes per batch (count <= 0 uses 10).
func NewRecoveryCodeManager(repo repository.Repository, count int) *RecoveryCodeManager {
	if count <= 0 {
		count = DefaultRecoveryCodeCount
	}
	return &RecoveryCodeManager{repo: repo, count: count, now: time.Now}
}

// SetClock replaces the time source (tests).
func (m *RecoveryCodeManager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// IssueBatch replaces all of the user's codes with a fresh batch of pairwise-distinct codes
// and returns the plaintexts. They cannot be retrieved again.
func (m *RecoveryCodeManager) IssueBatch(ctx context.Context, userID string) ([]string, error) {
	now := m.now().UTC()
	plain := make([]string, 0, m.count)
	rows := make([]*domain.RecoveryCode, 0, m.count)
	seen := make(map[string]struct{}, m.count)
	for len(plain) < m.count {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		plain = append(plain, code)
		rows = append(rows, &domain.RecoveryCode{
			ID:        uuid.New().String(),
			UserID:    userID,
			CodeHash:  security.HashToken(code),
			CreatedAt: now,
		})
	}
	if err := m.repo.ReplaceForUser(ctx, userID, rows); err != nil {
		return nil, err
	}
	return plain, nil
}

// Consume marks the user's matching unused code as used. It returns true for exactly one
// caller per code; unknown, malformed, or already-used codes return false. Errors are
// returned only for store failures.
func (m *RecoveryCodeManager) Consume(ctx context.Context, userID, code string) (bool, error) {
	code = NormalizeRecoveryCode(code)
	if !isRecoveryCode(code) {
		return false, nil
	}
	rc, err := m.repo.FindUnused(ctx, userID, security.HashToken(code))
	if err != nil || rc == nil {
		return false, err
	}
	return m.repo.MarkUsed(ctx, rc.ID, m.now().UTC())
}

// Remaining returns how many unused codes the user has.
func (m *RecoveryCodeManager) Remaining(ctx context.Context, userID string) (int, error) {
	return m.repo.CountUnused(ctx, userID)
}

// RevokeAll deletes every code for the user.
func (m *RecoveryCodeManager) RevokeAll(ctx context.Context, userID string) error {
	return m.repo.DeleteForUser(ctx, userID)
}

// NormalizeRecoveryCode trims whitespace, drops dashes, and lower-cases the input.
func NormalizeRecoveryCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

func generateRecoveryCode() (string, error) {
	b := make([]byte, recoveryCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isRecoveryCode(s string) bool {
	if len(s) != recoveryCodeBytes*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
