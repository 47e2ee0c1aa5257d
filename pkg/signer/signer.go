package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// signingKeyInfo separates the transaction signing key from any other key
// derived from the same mnemonic.
const signingKeyInfo = "seismic-proxy/tx-signer/v1"

// LocalSigner holds a secp256k1 key in memory and signs seismic and plain
// Ethereum transactions with it.
type LocalSigner struct {
	priv    *secp256k1.PrivateKey
	address common.Address
}

// NewLocalSigner wraps an existing private key.
func NewLocalSigner(priv *secp256k1.PrivateKey) (*LocalSigner, error) {
	if priv == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	addr, err := evmAddressFromSecp256k1Pub(priv.PubKey())
	if err != nil {
		return nil, err
	}
	return &LocalSigner{priv: priv, address: addr}, nil
}

// FromHex parses a 32-byte hex private key, with or without 0x prefix.
func FromHex(key string) (*LocalSigner, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "0x")
	b, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	defer clear(b)
	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(b); overflow || k.IsZero() {
		return nil, fmt.Errorf("private key out of range")
	}
	return NewLocalSigner(secp256k1.NewPrivateKey(&k))
}

// ErrKeyAndMnemonic is returned by Load when both key sources are set.
var ErrKeyAndMnemonic = errors.New("private key and mnemonic are mutually exclusive")

// Load builds a signer from whichever of privateKey or mnemonic is set. It
// returns nil and no error when neither is.
func Load(privateKey, mnemonic string) (*LocalSigner, error) {
	privateKey, mnemonic = strings.TrimSpace(privateKey), strings.TrimSpace(mnemonic)
	switch {
	case privateKey != "" && mnemonic != "":
		return nil, ErrKeyAndMnemonic
	case privateKey != "":
		return FromHex(privateKey)
	case mnemonic != "":
		return FromMnemonic(mnemonic)
	default:
		return nil, nil
	}
}

// FromMnemonic derives the signing key from a BIP-39 mnemonic.
func FromMnemonic(mnemonic string) (*LocalSigner, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("mnemonic is not a valid BIP-39 mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	sk := hkdfExpand32(seed, []byte(signingKeyInfo))
	defer clear(sk[:])
	return NewLocalSigner(secp256k1.PrivKeyFromBytes(sk[:]))
}

func hkdfExpand32(seed, info []byte) [32]byte {
	rd := hkdf.New(sha256.New, seed, nil, info)
	var out [32]byte
	_, _ = rd.Read(out[:])
	return out
}

func evmAddressFromSecp256k1Pub(pub *secp256k1.PublicKey) (common.Address, error) {
	if pub == nil {
		return common.Address{}, fmt.Errorf("nil secp256k1 public key")
	}
	uncompressed := pub.SerializeUncompressed()
	if len(uncompressed) != 65 || uncompressed[0] != 0x04 {
		return common.Address{}, fmt.Errorf("unexpected secp256k1 uncompressed pubkey encoding")
	}
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(uncompressed[1:])
	return common.BytesToAddress(h.Sum(nil)[12:]), nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignHash signs a 32-byte digest and returns the signature in y-parity form.
func (s *LocalSigner) SignHash(hash common.Hash) (types.Signature, error) {
	// compact layout: [27 + recovery id, R, S]
	compact := secp256k1ecdsa.SignCompact(s.priv, hash[:], false)
	if len(compact) != 65 {
		return types.Signature{}, fmt.Errorf("unexpected compact signature length %d", len(compact))
	}
	return types.Signature{
		R:       new(big.Int).SetBytes(compact[1:33]),
		S:       new(big.Int).SetBytes(compact[33:65]),
		YParity: compact[0]-27 == 1,
	}, nil
}

// SignTx signs tx using the scheme its EIP712Version selects.
func (s *LocalSigner) SignTx(tx *types.TxSeismic) (*types.SignedTxSeismic, error) {
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, fmt.Errorf("failed to compute signing hash: %w", err)
	}
	sig, err := s.SignHash(hash)
	if err != nil {
		return nil, err
	}
	return types.NewSignedTx(tx, sig)
}

// SignTypedData signs tx as EIP-712 typed data. tx.EIP712Version must be set.
func (s *LocalSigner) SignTypedData(tx *types.TxSeismic) (*types.TypedDataRequest, error) {
	if tx.EIP712Version == 0 {
		return nil, fmt.Errorf("typed data signing requires eip712Version >= 1")
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, fmt.Errorf("failed to compute signing hash: %w", err)
	}
	sig, err := s.SignHash(hash)
	if err != nil {
		return nil, err
	}
	return types.NewTypedDataRequest(tx, sig), nil
}

// SignEthTx signs a non-seismic transaction with go-ethereum's signer for
// chainID.
func (s *LocalSigner) SignEthTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	key, err := ethcrypto.ToECDSA(s.priv.Serialize())
	if err != nil {
		return nil, fmt.Errorf("failed to convert signing key: %w", err)
	}
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), key)
}
