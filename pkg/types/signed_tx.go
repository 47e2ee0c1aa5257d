package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// SignedTxSeismic is a seismic transaction together with its signature and
// canonical hash.
type SignedTxSeismic struct {
	Tx   *TxSeismic
	Sig  Signature
	Hash common.Hash
}

// NewSignedTx attaches sig to tx and computes the canonical hash once.
func NewSignedTx(tx *TxSeismic, sig Signature) (*SignedTxSeismic, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}
	hash, err := tx.Hash(sig)
	if err != nil {
		return nil, err
	}
	return &SignedTxSeismic{Tx: tx, Sig: sig, Hash: hash}, nil
}

func encodeSigned(w io.Writer, tx *TxSeismic, sig Signature) error {
	if err := tx.validate(); err != nil {
		return err
	}
	buf := rlp.NewEncoderBuffer(w)
	l := buf.List()
	tx.encodeFields(buf)
	buf.WriteBool(sig.YParity)
	buf.WriteBigInt(sig.r())
	buf.WriteBigInt(sig.s())
	buf.ListEnd(l)
	return buf.Flush()
}

// EncodeSigned writes rlp(list(fields..., yParity, r, s)) without the type
// byte.
func (stx *SignedTxSeismic) EncodeSigned(w io.Writer) error {
	return encodeSigned(w, stx.Tx, stx.Sig)
}

// DecodeSigned parses the output of EncodeSigned.
func DecodeSigned(b []byte) (*SignedTxSeismic, error) {
	s := rlp.NewStream(bytes.NewReader(b), uint64(len(b)))
	if _, err := s.List(); err != nil {
		return nil, fieldErr("list", err)
	}
	tx := new(TxSeismic)
	if err := tx.decodeFields(s); err != nil {
		return nil, err
	}
	var (
		sig Signature
		err error
	)
	if sig.YParity, err = s.Bool(); err != nil {
		return nil, fieldErr("yParity", err)
	}
	if sig.R, err = s.BigInt(); err != nil {
		return nil, fieldErr("r", err)
	}
	if sig.S, err = s.BigInt(); err != nil {
		return nil, fieldErr("s", err)
	}
	if err := s.ListEnd(); err != nil {
		return nil, fieldErr("trailing", err)
	}
	if err := expectEOF(s); err != nil {
		return nil, err
	}
	return NewSignedTx(tx, sig)
}

// MarshalBinary returns the EIP-2718 encoding: type byte then signed RLP.
func (stx *SignedTxSeismic) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(SeismicTxType)
	if err := stx.EncodeSigned(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses an EIP-2718 seismic envelope.
func (stx *SignedTxSeismic) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty input", ErrUnexpectedTxType)
	}
	if b[0] != SeismicTxType {
		return fmt.Errorf("%w: 0x%02x", ErrUnexpectedTxType, b[0])
	}
	dec, err := DecodeSigned(b[1:])
	if err != nil {
		return err
	}
	*stx = *dec
	return nil
}

// Sender recovers the signing address from the signing hash.
func (stx *SignedTxSeismic) Sender() (common.Address, error) {
	hash, err := stx.Tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, stx.Sig)
}

// RecoverAddress returns the address that produced sig over hash.
func RecoverAddress(hash common.Hash, sig Signature) (common.Address, error) {
	if err := sig.Validate(); err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash[:], sig.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
