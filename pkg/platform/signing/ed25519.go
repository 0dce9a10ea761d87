package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// AlgorithmEd25519 is the algorithm label recorded on witness signatures.
const AlgorithmEd25519 = "ed25519"

// Ed25519Signer signs with a private key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer wraps an existing private key.
func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519: invalid private key length %d", len(key))
	}
	return &Ed25519Signer{key: key}, nil
}

// GenerateEd25519 creates a fresh key pair and returns the signer together
// with the hex-encoded public key.
func GenerateEd25519() (*Ed25519Signer, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{key: priv}, hex.EncodeToString(pub), nil
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

// PublicKeyHex returns the hex encoding of the signer's public key.
func (s *Ed25519Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Ed25519Verifier verifies Ed25519 signatures.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(signature, data, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature)
}

// VerifyHex decodes hex-encoded signature and key material before verifying.
// Malformed encodings verify as false.
func VerifyHex(v Verifier, signatureHex string, data []byte, publicKeyHex string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) == 0 {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) == 0 {
		return false
	}
	return v.Verify(sig, data, pub)
}
