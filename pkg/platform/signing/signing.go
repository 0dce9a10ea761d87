// Package signing abstracts the sign/verify capability used by threshold
// parties and witnesses. Implementations must be safe for concurrent use.
package signing

//go:generate mockgen -source=signing.go -destination=mocks/mocks.go -package=mocks

// Signer produces a signature over data with a key it owns.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// Verifier checks a signature over data against a public key.
type Verifier interface {
	Verify(signature, data, publicKey []byte) bool
}
