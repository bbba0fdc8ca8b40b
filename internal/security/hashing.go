package security

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt will hash. Longer passwords are rejected
// by GenerateFromPassword, so callers validate against it up front.
const MaxPasswordBytes = 72

// dummyPassword is hashed once per Hasher and compared against when the account
// being logged into does not exist.
var dummyPassword = []byte("twofactor-session/timing-equalizer")

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a salted bcrypt hash of password at the configured cost.
// Returns the hash as a string suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the stored hash. A malformed or empty
// stored hash is a verification failure, never an error.
func (h *Hasher) Verify(hash string, password []byte) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), password) == nil
}

// VerifyDummy runs a full bcrypt comparison against a fixed hash at the same cost and
// always returns false. Login calls it for unknown emails so both rejection paths take
// comparable time.
func (h *Hasher) VerifyDummy(password []byte) bool {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword(dummyPassword, h.Cost)
		if err == nil {
			h.dummyHash = b
		}
	})
	if h.dummyHash == nil {
		return false
	}
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, password)
	return false
}
