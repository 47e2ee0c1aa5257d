package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

type txSeismicJSON struct {
	ChainID          hexutil.Uint64  `json:"chainId"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Gas              *hexutil.Uint64 `json:"gas,omitempty"`
	GasLimit         *hexutil.Uint64 `json:"gasLimit,omitempty"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	EncryptionPubkey hexutil.Bytes   `json:"encryptionPubkey"`
	EIP712Version    uint8           `json:"eip712Version"`
	Input            hexutil.Bytes   `json:"input"`
}

func (tx *TxSeismic) MarshalJSON() ([]byte, error) {
	gas := hexutil.Uint64(tx.Gas)
	return json.Marshal(txSeismicJSON{
		ChainID:          hexutil.Uint64(tx.ChainID),
		Nonce:            hexutil.Uint64(tx.Nonce),
		GasPrice:         (*hexutil.Big)(tx.gasPrice()),
		Gas:              &gas,
		To:               tx.To,
		Value:            (*hexutil.Big)(tx.value().ToBig()),
		EncryptionPubkey: tx.EncryptionPubkey[:],
		EIP712Version:    tx.EIP712Version,
		Input:            tx.Input,
	})
}

// UnmarshalJSON accepts "gasLimit" as an alias of "gas".
func (tx *TxSeismic) UnmarshalJSON(b []byte) error {
	var dec txSeismicJSON
	if err := json.Unmarshal(b, &dec); err != nil {
		return err
	}
	gas := dec.Gas
	if gas == nil {
		gas = dec.GasLimit
	}
	if gas == nil {
		return fmt.Errorf("%w: gas", ErrMissingField)
	}
	if dec.GasPrice == nil {
		return fmt.Errorf("%w: gasPrice", ErrMissingField)
	}
	if len(dec.EncryptionPubkey) != EncryptionPublicKeySize {
		return fmt.Errorf("encryptionPubkey must be %d bytes, got %d", EncryptionPublicKeySize, len(dec.EncryptionPubkey))
	}
	out := TxSeismic{
		ChainID:       uint64(dec.ChainID),
		Nonce:         uint64(dec.Nonce),
		GasPrice:      new(big.Int).Set(dec.GasPrice.ToInt()),
		Gas:           uint64(*gas),
		To:            dec.To,
		Value:         new(uint256.Int),
		EIP712Version: dec.EIP712Version,
		Input:         dec.Input,
	}
	if dec.Value != nil {
		v, overflow := uint256.FromBig(dec.Value.ToInt())
		if overflow {
			return fmt.Errorf("value exceeds 256 bits")
		}
		out.Value = v
	}
	copy(out.EncryptionPubkey[:], dec.EncryptionPubkey)
	if err := out.validate(); err != nil {
		return err
	}
	*tx = out
	return nil
}
