package security

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
)

// NewTestPendingTokenSigner returns a PendingTokenSigner backed by a freshly generated
// P-256 key. For unit tests only.
func NewTestPendingTokenSigner() (*PendingTokenSigner, error) {
	priv, pub, err := GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}
	return NewPendingTokenSigner(priv, pub, "test-issuer", "test-audience"), nil
}

// EncodeKeyPairPEM returns PKCS#8 / PKIX PEM encodings of the given key pair.
// For unit tests only.
func EncodeKeyPairPEM(priv crypto.Signer) (privatePEM, publicPEM string, err error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return "", "", err
	}
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM, nil
}
