package cli

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxDescription is the decoded view of a raw signed seismic envelope.
type TxDescription struct {
	Hash        common.Hash      `json:"hash"`
	SigningHash common.Hash      `json:"signingHash"`
	From        common.Address   `json:"from"`
	Tx          *types.TxSeismic `json:"tx"`
	Signature   types.Signature  `json:"signature"`
}

// DecodeRawTx parses a 0x-prefixed (or bare) hex EIP-2718 seismic envelope.
func DecodeRawTx(raw string) (*types.SignedTxSeismic, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") {
		raw = "0x" + raw
	}
	b, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid raw transaction hex: %w", err)
	}
	stx := new(types.SignedTxSeismic)
	if err := stx.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return stx, nil
}

func DescribeRawTx(raw string) (*TxDescription, error) {
	stx, err := DecodeRawTx(raw)
	if err != nil {
		return nil, err
	}
	signingHash, err := stx.Tx.SigningHash()
	if err != nil {
		return nil, fmt.Errorf("failed to compute signing hash: %w", err)
	}
	from, err := types.RecoverAddress(signingHash, stx.Sig)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender: %w", err)
	}
	return &TxDescription{
		Hash:        stx.Hash,
		SigningHash: signingHash,
		From:        from,
		Tx:          stx.Tx,
		Signature:   stx.Sig,
	}, nil
}
