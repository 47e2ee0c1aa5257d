package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = 33

// EphemeralKey is a single-use secp256k1 key pair. One is generated for every
// encrypted call and zeroed once the call returns.
type EphemeralKey struct {
	priv *secp256k1.PrivateKey
}

// NewEphemeralKey draws a private scalar from r. A nil reader falls back to
// crypto/rand.
func NewEphemeralKey(r io.Reader) (*EphemeralKey, error) {
	if r == nil {
		r = rand.Reader
	}
	priv, err := secp256k1.GeneratePrivateKeyFromRand(r)
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &EphemeralKey{priv: priv}, nil
}

// Private returns the underlying private key. It is nil after Zero.
func (k *EphemeralKey) Private() *secp256k1.PrivateKey {
	return k.priv
}

// PublicKey returns the compressed public key advertised in the envelope.
func (k *EphemeralKey) PublicKey() [PublicKeySize]byte {
	var out [PublicKeySize]byte
	copy(out[:], k.priv.PubKey().SerializeCompressed())
	return out
}

// Zero clears the private scalar.
func (k *EphemeralKey) Zero() {
	if k == nil || k.priv == nil {
		return
	}
	k.priv.Zero()
	k.priv = nil
}

// ParseEnclavePublicKey parses the compressed enclave public key returned by
// seismic_getTeePublicKey.
func ParseEnclavePublicKey(b []byte) (*secp256k1.PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("enclave public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse enclave public key: %w", err)
	}
	return pub, nil
}
