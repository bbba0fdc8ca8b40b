package domain

import "time"

// RecoveryCode is a single-use backup credential. Only the SHA-256 of the code is stored;
// the plaintext is shown once at issue time.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time // nil until consumed
	CreatedAt time.Time
}
