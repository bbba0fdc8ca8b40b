package mfa

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpDigits     = 6
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20
)

// TOTPManager generates and checks RFC 6238 codes (SHA-1, 6 digits, 30s period) against
// base32 secrets.
type TOTPManager struct {
	issuer string
	now    func() time.Time
}

// NewTOTPManager returns a manager that writes issuer into enrollment URIs.
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer, now: time.Now}
}

// SetClock replaces the time source (tests).
func (m *TOTPManager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Issuer returns the default issuer label.
func (m *TOTPManager) Issuer() string { return m.issuer }

// GenerateSecret returns a new 160-bit secret, base32 encoded without padding.
func (m *TOTPManager) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: "enrollment",
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// EnrollmentURI returns the otpauth:// URI for secret. An empty issuer uses the manager's.
func (m *TOTPManager) EnrollmentURI(account, issuer, secret string) (string, error) {
	if issuer == "" {
		issuer = m.issuer
	}
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// Check reports whether code is valid for secret in the current, previous, or next
// 30-second window. Every window is compared so the work done does not depend on which
// one (if any) matched. Malformed codes or secrets yield false.
func (m *TOTPManager) Check(code, secret string) bool {
	if !isDigits(code, totpDigits) || secret == "" {
		return false
	}
	now := m.now()
	match := 0
	for i := -totpSkew; i <= totpSkew; i++ {
		want, err := m.codeAt(secret, now.Add(time.Duration(i*totpPeriod)*time.Second))
		if err != nil {
			return false
		}
		match |= subtle.ConstantTimeCompare([]byte(want), []byte(code))
	}
	return match == 1
}

func (m *TOTPManager) codeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// ErrInvalidSecret is returned when a stored secret is not valid base32.
var ErrInvalidSecret = errors.New("invalid totp secret")

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
