package rpcClient

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/seismic-proxy/pkg/transport"
	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const (
	MethodGetTeePublicKey    = "seismic_getTeePublicKey"
	MethodCall               = "eth_call"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodSendRawTransaction = "eth_sendRawTransaction"
	MethodEstimateGas        = "eth_estimateGas"

	blockTagLatest = "latest"
)

// Signer signs transactions on behalf of a single account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.TxSeismic) (*types.SignedTxSeismic, error)
	SignEthTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// Client is the inner provider that talks JSON-RPC to a seismic node. With a
// signer it fills, signs and submits raw transactions locally; without one
// it relies on the node's eth_sendTransaction.
type Client struct {
	logger *zap.Logger
	rpc    *rpc.Client
	eth    *ethclient.Client
	signer Signer
	retry  RetryConfig
}

type ClientOption func(*Client)

func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

func NewClient(rpcClient *rpc.Client, signer Signer, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if rpcClient == nil {
		return nil, fmt.Errorf("rpc client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	c := &Client{
		logger: logger,
		rpc:    rpcClient,
		eth:    ethclient.NewClient(rpcClient),
		signer: signer,
		retry:  DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dial connects to rawURL (http, ws or ipc).
func Dial(ctx context.Context, rawURL string, signer Signer, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}
	c, err := NewClient(rc, signer, logger, opts...)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// HasSigner reports whether transactions are signed locally.
func (c *Client) HasSigner() bool {
	return c.signer != nil
}

// SignerAddress returns the local signer's address, or the zero address
// without one.
func (c *Client) SignerAddress() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) GetTeePublicKey(ctx context.Context) ([]byte, error) {
	return retry(ctx, c, "Fetching TEE public key", func() ([]byte, error) {
		var out hexutil.Bytes
		if err := c.rpc.CallContext(ctx, &out, MethodGetTeePublicKey); err != nil {
			return nil, classify(err)
		}
		return out, nil
	})
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := retry(ctx, c, "Fetching chain id", func() (*big.Int, error) {
		id, err := c.eth.ChainID(ctx)
		return id, classify(err)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id %s exceeds uint64", id)
	}
	return id.Uint64(), nil
}

// PendingNonceAt implements transport.NonceSource.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return retry(ctx, c, "Fetching pending nonce", func() (uint64, error) {
		n, err := c.eth.PendingNonceAt(ctx, account)
		return n, classify(err)
	})
}

// Call runs eth_call. A seismic request from the signer's own account is
// signed first so the node can authenticate msg.sender for the read.
func (c *Client) Call(ctx context.Context, req *types.TransactionRequest) (hexutil.Bytes, error) {
	callReq := types.NewCallRequestFromTransaction(req)
	if c.signsFor(req) && req.EncryptionPubkey != nil {
		stx, err := c.signSeismic(ctx, req)
		if err != nil {
			return nil, err
		}
		if callReq, err = types.NewCallRequestFromSigned(stx); err != nil {
			return nil, err
		}
		c.logger.Sugar().Debugw("Sending signed read", "hash", stx.Hash.Hex())
	}
	return c.CallRequest(ctx, callReq)
}

// CallRequest runs eth_call with any variant of the call union.
func (c *Client) CallRequest(ctx context.Context, req types.CallRequest) (hexutil.Bytes, error) {
	var out hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &out, MethodCall, req, blockTagLatest); err != nil {
		return nil, err
	}
	return out, nil
}

// SendTransaction submits req. With a signer the transaction is filled and
// signed locally, otherwise the node signs it.
func (c *Client) SendTransaction(ctx context.Context, req *types.TransactionRequest) (*transport.PendingTransaction, error) {
	if c.signer == nil {
		var hash common.Hash
		if err := c.rpc.CallContext(ctx, &hash, MethodSendTransaction, req); err != nil {
			return nil, err
		}
		return transport.NewPendingTransaction(hash, c), nil
	}
	if req.From != nil && *req.From != c.signer.Address() {
		return nil, fmt.Errorf("cannot sign for %s, signer is %s", req.From.Hex(), c.signer.Address().Hex())
	}

	if req.IsSeismic() || req.EncryptionPubkey != nil {
		stx, err := c.signSeismic(ctx, req)
		if err != nil {
			return nil, err
		}
		raw, err := types.NewRawTxRequestFromSigned(stx)
		if err != nil {
			return nil, err
		}
		c.logger.Sugar().Debugw("Sending seismic transaction", "hash", stx.Hash.Hex(), "nonce", stx.Tx.Nonce)
		return c.SendRawTransaction(ctx, raw)
	}

	raw, err := c.signLegacy(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.SendRawTransaction(ctx, types.NewRawTxRequestFromBytes(raw))
}

// SendRawTransaction submits a signed envelope or an EIP-712 signed request.
func (c *Client) SendRawTransaction(ctx context.Context, raw types.RawTxRequest) (*transport.PendingTransaction, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, MethodSendRawTransaction, raw); err != nil {
		return nil, err
	}
	return transport.NewPendingTransaction(hash, c), nil
}

// WaitForReceipt polls eth_getTransactionReceipt until the receipt exists.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return retry(ctx, c, "Waiting for receipt", func() (*ethtypes.Receipt, error) {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		return receipt, classify(err)
	})
}

func (c *Client) signsFor(req *types.TransactionRequest) bool {
	if c.signer == nil {
		return false
	}
	return req.From == nil || *req.From == c.signer.Address()
}

func (c *Client) signSeismic(ctx context.Context, req *types.TransactionRequest) (*types.SignedTxSeismic, error) {
	filled, err := c.fill(ctx, req)
	if err != nil {
		return nil, err
	}
	tx, err := filled.ToTxSeismic()
	if err != nil {
		return nil, fmt.Errorf("failed to build seismic transaction: %w", err)
	}
	stx, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign seismic transaction: %w", err)
	}
	return stx, nil
}

func (c *Client) signLegacy(ctx context.Context, req *types.TransactionRequest) ([]byte, error) {
	filled, err := c.fill(ctx, req)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if filled.Value != nil {
		value = filled.Value.ToInt()
	}
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    uint64(*filled.Nonce),
		GasPrice: filled.GasPrice.ToInt(),
		Gas:      uint64(*filled.Gas),
		To:       filled.To,
		Value:    value,
		Data:     filled.InputBytes(),
	})
	signed, err := c.signer.SignEthTx(tx, new(big.Int).SetUint64(uint64(*filled.ChainID)))
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	c.logger.Sugar().Debugw("Sending legacy transaction", "hash", signed.Hash().Hex(), "nonce", signed.Nonce())
	return signed.MarshalBinary()
}

// fill returns a copy of req with from, chainId, nonce, gasPrice and gas set.
func (c *Client) fill(ctx context.Context, req *types.TransactionRequest) (*types.TransactionRequest, error) {
	out := req.Copy()
	if out.From == nil {
		from := c.signer.Address()
		out.From = &from
	}
	if out.ChainID == nil {
		id, err := c.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		v := hexutil.Uint64(id)
		out.ChainID = &v
	}
	if out.Nonce == nil {
		n, err := c.PendingNonceAt(ctx, *out.From)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch nonce: %w", err)
		}
		out.SetNonce(n)
	}
	if out.GasPrice == nil {
		price, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch gas price: %w", err)
		}
		out.GasPrice = (*hexutil.Big)(price)
	}
	if out.Gas == nil {
		var gas hexutil.Uint64
		if err := c.rpc.CallContext(ctx, &gas, MethodEstimateGas, out); err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		out.Gas = &gas
	}
	return out, nil
}
