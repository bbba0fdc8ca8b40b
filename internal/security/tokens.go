package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
)

// PendingClaims holds JWT claims for the pending second-factor cookie. The jti is the
// pending token id; the token deliberately carries no subject so the cookie never
// discloses which user is mid-login.
type PendingClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

const pendingPurpose = "second_factor"

// PendingTokenSigner signs and validates pending second-factor cookies using RS256 or ES256.
// The signature only protects the cookie from tampering; the pending row in the store
// remains authoritative for expiry and single use.
type PendingTokenSigner struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	now        func() time.Time
}

// NewPendingTokenSigner returns a signer for the given key pair. issuer and audience are
// set on claims and required on validation.
func NewPendingTokenSigner(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string) *PendingTokenSigner {
	return &PendingTokenSigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Tests use it to move past expiry.
func (s *PendingTokenSigner) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sign issues a JWT for the pending token id that expires at expiresAt.
func (s *PendingTokenSigner) Sign(pendingID string, expiresAt time.Time) (string, error) {
	if pendingID == "" {
		return "", ErrInvalidToken
	}
	now := s.now().UTC()
	claims := PendingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        pendingID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
		},
		Purpose: pendingPurpose,
	}
	var method jwt.SigningMethod
	switch s.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	return jwt.NewWithClaims(method, claims).SignedString(s.privateKey)
}

// Parse validates the token (signature, exp, iss, aud, purpose) and returns the pending token id.
func (s *PendingTokenSigner) Parse(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &PendingClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*PendingClaims)
	if !ok || !token.Valid || claims.Purpose != pendingPurpose || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
