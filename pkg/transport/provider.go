package transport

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Provider is the RPC surface the confidential layer wraps. Implementations
// must honour ctx cancellation.
type Provider interface {
	Call(ctx context.Context, req *types.TransactionRequest) (hexutil.Bytes, error)
	SendTransaction(ctx context.Context, req *types.TransactionRequest) (*PendingTransaction, error)
	GetTeePublicKey(ctx context.Context) ([]byte, error)
}

// ReceiptWaiter blocks until a receipt for hash is available.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// PendingTransaction is a handle to a submitted transaction.
type PendingTransaction struct {
	Hash   common.Hash
	waiter ReceiptWaiter
}

func NewPendingTransaction(hash common.Hash, waiter ReceiptWaiter) *PendingTransaction {
	return &PendingTransaction{Hash: hash, waiter: waiter}
}

// Wait blocks until the transaction is mined or ctx is done.
func (p *PendingTransaction) Wait(ctx context.Context) (*ethtypes.Receipt, error) {
	if p.waiter == nil {
		return nil, fmt.Errorf("pending transaction %s has no receipt source", p.Hash.Hex())
	}
	return p.waiter.WaitForReceipt(ctx, p.Hash)
}
