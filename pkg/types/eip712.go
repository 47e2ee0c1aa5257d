package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

const (
	EIP712DomainName  = "Seismic Transaction"
	EIP712PrimaryType = "TxSeismic"
)

var txSeismicEIP712Types = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	EIP712PrimaryType: []apitypes.Type{
		{Name: "chainId", Type: "uint64"},
		{Name: "nonce", Type: "uint64"},
		{Name: "gasPrice", Type: "uint128"},
		{Name: "gasLimit", Type: "uint64"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "encryptionPubkey", Type: "bytes"},
		{Name: "eip712Version", Type: "uint8"},
		{Name: "input", Type: "bytes"},
	},
}

// TypedData renders tx as an EIP-712 message. The domain version is the
// decimal EIP712Version and the verifying contract is the zero address.
// A creation transaction is rendered with the zero address in "to".
func (tx *TxSeismic) TypedData() apitypes.TypedData {
	to := common.Address{}
	if tx.To != nil {
		to = *tx.To
	}
	chainID := new(big.Int).SetUint64(tx.ChainID)
	return apitypes.TypedData{
		Types:       txSeismicEIP712Types,
		PrimaryType: EIP712PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              EIP712DomainName,
			Version:           strconv.Itoa(int(tx.EIP712Version)),
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"chainId":          hexOrDecimal(new(big.Int).SetUint64(tx.ChainID)),
			"nonce":            hexOrDecimal(new(big.Int).SetUint64(tx.Nonce)),
			"gasPrice":         hexOrDecimal(new(big.Int).Set(tx.gasPrice())),
			"gasLimit":         hexOrDecimal(new(big.Int).SetUint64(tx.Gas)),
			"to":               to.Hex(),
			"value":            hexOrDecimal(tx.value().ToBig()),
			"encryptionPubkey": hexutil.Bytes(common.CopyBytes(tx.EncryptionPubkey[:])),
			"eip712Version":    hexOrDecimal(new(big.Int).SetUint64(uint64(tx.EIP712Version))),
			"input":            hexutil.Bytes(common.CopyBytes(tx.Input)),
		},
	}
}

// hexOrDecimal keeps integers exact through a JSON round trip; plain
// *big.Int values would come back as float64.
func hexOrDecimal(v *big.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(v)
}

func (tx *TxSeismic) eip712SigningHash() (common.Hash, error) {
	if err := tx.validate(); err != nil {
		return common.Hash{}, err
	}
	return typedDataHash(tx.TypedData())
}

func typedDataHash(td apitypes.TypedData) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// TxFromTypedData rebuilds a TxSeismic from an EIP-712 message. Message values
// may be Go values or their JSON-decoded forms.
func TxFromTypedData(td apitypes.TypedData) (*TxSeismic, error) {
	if td.PrimaryType != EIP712PrimaryType {
		return nil, fmt.Errorf("%w: primary type %q", ErrUnexpectedTxType, td.PrimaryType)
	}
	if td.Domain.Name != EIP712DomainName {
		return nil, fmt.Errorf("unexpected EIP-712 domain name %q", td.Domain.Name)
	}
	msg := td.Message
	tx := new(TxSeismic)

	var err error
	if tx.ChainID, err = messageUint64(msg, "chainId"); err != nil {
		return nil, err
	}
	if tx.Nonce, err = messageUint64(msg, "nonce"); err != nil {
		return nil, err
	}
	if tx.GasPrice, err = messageBig(msg, "gasPrice"); err != nil {
		return nil, err
	}
	if tx.Gas, err = messageUint64(msg, "gasLimit"); err != nil {
		return nil, err
	}
	to, err := messageAddress(msg, "to")
	if err != nil {
		return nil, err
	}
	// the zero address is how creation is rendered
	if to != (common.Address{}) {
		tx.To = &to
	}
	value, err := messageBig(msg, "value")
	if err != nil {
		return nil, err
	}
	v, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fieldErr("value", fmt.Errorf("value exceeds 256 bits"))
	}
	tx.Value = v
	pk, err := messageBytes(msg, "encryptionPubkey")
	if err != nil {
		return nil, err
	}
	if len(pk) != EncryptionPublicKeySize {
		return nil, fieldErr("encryptionPubkey", fmt.Errorf("expected %d bytes, got %d", EncryptionPublicKeySize, len(pk)))
	}
	copy(tx.EncryptionPubkey[:], pk)
	version, err := messageUint64(msg, "eip712Version")
	if err != nil {
		return nil, err
	}
	if version > 0xff {
		return nil, fieldErr("eip712Version", fmt.Errorf("version %d exceeds uint8", version))
	}
	tx.EIP712Version = uint8(version)
	if tx.Input, err = messageBytes(msg, "input"); err != nil {
		return nil, err
	}
	if err := tx.validate(); err != nil {
		return nil, fieldErr("gasPrice", err)
	}
	return tx, nil
}

const maxExactFloat = 1 << 53

func messageBig(msg apitypes.TypedDataMessage, field string) (*big.Int, error) {
	raw, ok := msg[field]
	if !ok {
		return nil, fieldErr(field, ErrMissingField)
	}
	var out *big.Int
	switch v := raw.(type) {
	case *big.Int:
		out = new(big.Int).Set(v)
	case *math.HexOrDecimal256:
		out = new(big.Int).Set((*big.Int)(v))
	case uint64:
		out = new(big.Int).SetUint64(v)
	case float64:
		// JSON numbers decode as float64, which is exact only below 2^53.
		if v < 0 || v >= maxExactFloat || v != float64(uint64(v)) {
			return nil, fieldErr(field, fmt.Errorf("invalid integer %v, use a hex or decimal string", v))
		}
		out = new(big.Int).SetUint64(uint64(v))
	case string:
		n, ok := math.ParseBig256(strings.TrimSpace(v))
		if !ok {
			return nil, fieldErr(field, fmt.Errorf("invalid integer %q", v))
		}
		out = n
	default:
		return nil, fieldErr(field, fmt.Errorf("unsupported integer type %T", raw))
	}
	if out.Sign() < 0 {
		return nil, fieldErr(field, fmt.Errorf("negative integer"))
	}
	return out, nil
}

func messageUint64(msg apitypes.TypedDataMessage, field string) (uint64, error) {
	n, err := messageBig(msg, field)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fieldErr(field, fmt.Errorf("value exceeds uint64"))
	}
	return n.Uint64(), nil
}

func messageAddress(msg apitypes.TypedDataMessage, field string) (common.Address, error) {
	raw, ok := msg[field]
	if !ok || raw == nil {
		return common.Address{}, nil
	}
	switch v := raw.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	case string:
		if !common.IsHexAddress(v) {
			return common.Address{}, fieldErr(field, fmt.Errorf("invalid address %q", v))
		}
		return common.HexToAddress(v), nil
	default:
		return common.Address{}, fieldErr(field, fmt.Errorf("unsupported address type %T", raw))
	}
}

func messageBytes(msg apitypes.TypedDataMessage, field string) ([]byte, error) {
	raw, ok := msg[field]
	if !ok {
		return nil, fieldErr(field, ErrMissingField)
	}
	switch v := raw.(type) {
	case hexutil.Bytes:
		return common.CopyBytes(v), nil
	case []byte:
		return common.CopyBytes(v), nil
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fieldErr(field, err)
		}
		return b, nil
	default:
		return nil, fieldErr(field, fmt.Errorf("unsupported bytes type %T", raw))
	}
}
