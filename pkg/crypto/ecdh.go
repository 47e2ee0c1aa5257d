package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

const (
	aesKeyInfo = "aes-gcm key"

	gcmNonceSize = 12
)

// SharedSecret computes sha256 over the compressed ECDH point, matching
// libsecp256k1's default ECDH hash so both sides of the channel agree.
func SharedSecret(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) ([32]byte, error) {
	var out [32]byte
	if priv == nil || pub == nil {
		return out, fmt.Errorf("missing secp256k1 keys")
	}
	var point, result secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	shared := secp256k1.NewPublicKey(&result.X, &result.Y)
	return sha256.Sum256(shared.SerializeCompressed()), nil
}

// EcdhEncrypt seals plaintext for the holder of pub's private key. The nonce
// must never repeat for the same key pair; callers use the transaction nonce.
func EcdhEncrypt(pub *secp256k1.PublicKey, priv *secp256k1.PrivateKey, plaintext []byte, nonce uint64) ([]byte, error) {
	key, err := deriveAESKey(priv, pub)
	if err != nil {
		return nil, err
	}
	defer clear(key[:])
	return aesGCMSeal(key[:], gcmNonce(nonce), plaintext, nil)
}

// EcdhDecrypt opens a ciphertext produced by EcdhEncrypt on the other side of
// the key agreement.
func EcdhDecrypt(pub *secp256k1.PublicKey, priv *secp256k1.PrivateKey, ciphertext []byte, nonce uint64) ([]byte, error) {
	key, err := deriveAESKey(priv, pub)
	if err != nil {
		return nil, err
	}
	defer clear(key[:])
	return aesGCMOpen(key[:], gcmNonce(nonce), ciphertext, nil)
}

func deriveAESKey(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) ([32]byte, error) {
	var out [32]byte
	shared, err := SharedSecret(priv, pub)
	if err != nil {
		return out, err
	}
	defer clear(shared[:])
	rd := hkdf.New(sha256.New, shared[:], nil, []byte(aesKeyInfo))
	if _, err := rd.Read(out[:]); err != nil {
		return out, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// gcmNonce widens the 8-byte transaction nonce to a 12-byte GCM nonce:
// big-endian nonce followed by four zero bytes.
func gcmNonce(n uint64) []byte {
	out := make([]byte, gcmNonceSize)
	binary.BigEndian.PutUint64(out, n)
	return out
}

func aesGCMOpen(key, nonce12, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes key must be 32 bytes, got %d", len(key))
	}
	if len(nonce12) != gcmNonceSize {
		return nil, fmt.Errorf("gcm nonce must be 12 bytes, got %d", len(nonce12))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce12, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return pt, nil
}

func aesGCMSeal(key, nonce12, plaintext, aad []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes key must be 32 bytes, got %d", len(key))
	}
	if len(nonce12) != gcmNonceSize {
		return nil, fmt.Errorf("gcm nonce must be 12 bytes, got %d", len(nonce12))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce12, plaintext, aad), nil
}
