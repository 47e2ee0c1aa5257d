package types

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// SeismicTxType is the EIP-2718 type byte of a seismic transaction.
const SeismicTxType = 0x4A

// EncryptionPublicKeySize is the length of a compressed secp256k1 key.
const EncryptionPublicKeySize = 33

// EncryptionPublicKey is the caller's ephemeral compressed public key. The
// enclave uses it with its own private key to derive the input's AES key.
type EncryptionPublicKey [EncryptionPublicKeySize]byte

var errGasPriceOverflow = errors.New("gas price exceeds 128 bits")

// TxSeismic is an unsigned seismic transaction. Input carries ciphertext once
// the confidential transport has processed the request.
type TxSeismic struct {
	ChainID  uint64
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	// To is nil for contract creation.
	To               *common.Address
	Value            *uint256.Int
	EncryptionPubkey EncryptionPublicKey
	// EIP712Version selects the signing scheme: 0 signs the RLP encoding,
	// anything else signs the EIP-712 typed data with this domain version.
	EIP712Version uint8
	Input         []byte
}

func (tx *TxSeismic) gasPrice() *big.Int {
	if tx.GasPrice == nil {
		return new(big.Int)
	}
	return tx.GasPrice
}

func (tx *TxSeismic) value() *uint256.Int {
	if tx.Value == nil {
		return new(uint256.Int)
	}
	return tx.Value
}

// IsCreate reports whether the transaction deploys a contract.
func (tx *TxSeismic) IsCreate() bool {
	return tx.To == nil
}

func (tx *TxSeismic) validate() error {
	if tx.GasPrice != nil {
		if tx.GasPrice.Sign() < 0 {
			return fmt.Errorf("negative gas price")
		}
		if tx.GasPrice.BitLen() > 128 {
			return errGasPriceOverflow
		}
	}
	return nil
}

// FieldsEncodedLength is the byte length of the concatenated RLP fields,
// excluding any list header.
func (tx *TxSeismic) FieldsEncodedLength() int {
	n := rlp.IntSize(tx.ChainID)
	n += rlp.IntSize(tx.Nonce)
	n += stringSize(tx.gasPrice().Bytes())
	n += rlp.IntSize(tx.Gas)
	if tx.To == nil {
		n++
	} else {
		n += stringSize(tx.To[:])
	}
	n += stringSize(tx.value().Bytes())
	n += stringSize(tx.EncryptionPubkey[:])
	n += rlp.IntSize(uint64(tx.EIP712Version))
	n += stringSize(tx.Input)
	return n
}

// EncodeFields writes the RLP fields in wire order without a list header.
func (tx *TxSeismic) EncodeFields(w io.Writer) error {
	if err := tx.validate(); err != nil {
		return err
	}
	buf := rlp.NewEncoderBuffer(w)
	tx.encodeFields(buf)
	return buf.Flush()
}

func (tx *TxSeismic) encodeFields(buf rlp.EncoderBuffer) {
	buf.WriteUint64(tx.ChainID)
	buf.WriteUint64(tx.Nonce)
	buf.WriteBigInt(tx.gasPrice())
	buf.WriteUint64(tx.Gas)
	if tx.To == nil {
		buf.WriteBytes(nil)
	} else {
		buf.WriteBytes(tx.To[:])
	}
	buf.WriteBigInt(tx.value().ToBig())
	buf.WriteBytes(tx.EncryptionPubkey[:])
	buf.WriteUint64(uint64(tx.EIP712Version))
	buf.WriteBytes(tx.Input)
}

// EncodeRLP implements rlp.Encoder. The output is the list-wrapped unsigned
// form.
func (tx *TxSeismic) EncodeRLP(w io.Writer) error {
	if err := tx.validate(); err != nil {
		return err
	}
	buf := rlp.NewEncoderBuffer(w)
	l := buf.List()
	tx.encodeFields(buf)
	buf.ListEnd(l)
	return buf.Flush()
}

// DecodeRLP implements rlp.Decoder.
func (tx *TxSeismic) DecodeRLP(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}
	if err := tx.decodeFields(s); err != nil {
		return err
	}
	return s.ListEnd()
}

// DecodeFields parses the header-less field sequence written by EncodeFields.
// Input left over after the last field is rejected.
func DecodeFields(b []byte) (*TxSeismic, error) {
	s := rlp.NewStream(bytes.NewReader(b), uint64(len(b)))
	tx := new(TxSeismic)
	if err := tx.decodeFields(s); err != nil {
		return nil, err
	}
	if err := expectEOF(s); err != nil {
		return nil, err
	}
	return tx, nil
}

func expectEOF(s *rlp.Stream) error {
	if _, _, err := s.Kind(); err != io.EOF {
		return fieldErr("trailing", ErrTrailingBytes)
	}
	return nil
}

func (tx *TxSeismic) decodeFields(s *rlp.Stream) error {
	var err error
	if tx.ChainID, err = s.Uint64(); err != nil {
		return fieldErr("chainId", err)
	}
	if tx.Nonce, err = s.Uint64(); err != nil {
		return fieldErr("nonce", err)
	}
	if tx.GasPrice, err = s.BigInt(); err != nil {
		return fieldErr("gasPrice", err)
	}
	if tx.GasPrice.BitLen() > 128 {
		return fieldErr("gasPrice", errGasPriceOverflow)
	}
	if tx.Gas, err = s.Uint64(); err != nil {
		return fieldErr("gasLimit", err)
	}

	to, err := s.Bytes()
	if err != nil {
		return fieldErr("to", err)
	}
	switch len(to) {
	case 0:
		tx.To = nil
	case common.AddressLength:
		addr := common.BytesToAddress(to)
		tx.To = &addr
	default:
		return fieldErr("to", fmt.Errorf("invalid address length %d", len(to)))
	}

	v, err := s.BigInt()
	if err != nil {
		return fieldErr("value", err)
	}
	value, overflow := uint256.FromBig(v)
	if overflow {
		return fieldErr("value", fmt.Errorf("value exceeds 256 bits"))
	}
	tx.Value = value

	pk, err := s.Bytes()
	if err != nil {
		return fieldErr("encryptionPubkey", err)
	}
	if len(pk) != EncryptionPublicKeySize {
		return fieldErr("encryptionPubkey", fmt.Errorf("expected %d bytes, got %d", EncryptionPublicKeySize, len(pk)))
	}
	copy(tx.EncryptionPubkey[:], pk)

	version, err := s.Uint64()
	if err != nil {
		return fieldErr("eip712Version", err)
	}
	if version > 0xff {
		return fieldErr("eip712Version", fmt.Errorf("version %d exceeds uint8", version))
	}
	tx.EIP712Version = uint8(version)

	if tx.Input, err = s.Bytes(); err != nil {
		return fieldErr("input", err)
	}
	return nil
}

// EncodeForSigning returns 0x4A || rlp(list(fields)), the legacy signing
// payload.
func (tx *TxSeismic) EncodeForSigning() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(SeismicTxType)
	if err := tx.EncodeRLP(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SigningHash returns the digest a wallet signs. The signing scheme is chosen
// by EIP712Version alone.
func (tx *TxSeismic) SigningHash() (common.Hash, error) {
	if tx.EIP712Version >= 1 {
		return tx.eip712SigningHash()
	}
	payload, err := tx.EncodeForSigning()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}

// Hash returns the canonical transaction hash of tx signed with sig. It does
// not depend on the signing scheme.
func (tx *TxSeismic) Hash(sig Signature) (common.Hash, error) {
	var buf bytes.Buffer
	buf.WriteByte(SeismicTxType)
	if err := encodeSigned(&buf, tx, sig); err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(buf.Bytes()), nil
}

// Size is an in-memory size heuristic. Fixed-width numeric fields are counted
// at their Go widths, with gasPrice counted as two 128-bit slots.
func (tx *TxSeismic) Size() int {
	n := 8 + // chainId
		8 + // nonce
		16 + // gasPrice
		8 + // gasLimit
		16 + // reserved priority fee slot
		32 + // value
		EncryptionPublicKeySize +
		1 + // eip712Version
		len(tx.Input)
	if tx.To != nil {
		n += common.AddressLength
	} else {
		n++
	}
	return n
}

// WireSize is the exact length of the list-wrapped RLP encoding.
func (tx *TxSeismic) WireSize() int {
	return listSize(tx.FieldsEncodedLength())
}

// Copy returns a deep copy of tx.
func (tx *TxSeismic) Copy() *TxSeismic {
	cpy := *tx
	if tx.GasPrice != nil {
		cpy.GasPrice = new(big.Int).Set(tx.GasPrice)
	}
	if tx.To != nil {
		to := *tx.To
		cpy.To = &to
	}
	if tx.Value != nil {
		cpy.Value = new(uint256.Int).Set(tx.Value)
	}
	if tx.Input != nil {
		cpy.Input = common.CopyBytes(tx.Input)
	}
	return &cpy
}

func stringSize(b []byte) int {
	if len(b) == 1 && b[0] < 0x80 {
		return 1
	}
	return headSize(len(b)) + len(b)
}

func listSize(content int) int {
	return headSize(content) + content
}

// headSize is the length of an RLP string or list header for n content bytes.
func headSize(n int) int {
	if n < 56 {
		return 1
	}
	size := 1
	for ; n > 0; n >>= 8 {
		size++
	}
	return size
}
