package transport

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// NonceSource returns the next nonce for an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceFiller sets a missing nonce from the chain before delegating. It sits
// outside SeismicProvider so requests without an explicit nonce still become
// eligible for encryption. Nonces are fetched every time and never cached.
type NonceFiller struct {
	inner  Provider
	source NonceSource
	logger *zap.Logger
}

func NewNonceFiller(inner Provider, source NonceSource, logger *zap.Logger) (*NonceFiller, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner provider cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("nonce source cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NonceFiller{inner: inner, source: source, logger: logger}, nil
}

func (f *NonceFiller) GetTeePublicKey(ctx context.Context) ([]byte, error) {
	return f.inner.GetTeePublicKey(ctx)
}

func (f *NonceFiller) Call(ctx context.Context, req *types.TransactionRequest) (hexutil.Bytes, error) {
	filled, err := f.fill(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.inner.Call(ctx, filled)
}

func (f *NonceFiller) SendTransaction(ctx context.Context, req *types.TransactionRequest) (*PendingTransaction, error) {
	filled, err := f.fill(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.inner.SendTransaction(ctx, filled)
}

// fill returns req itself when nothing needs filling, otherwise a copy.
func (f *NonceFiller) fill(ctx context.Context, req *types.TransactionRequest) (*types.TransactionRequest, error) {
	if req == nil || req.Nonce != nil || req.From == nil {
		return req, nil
	}
	nonce, err := f.source.PendingNonceAt(ctx, *req.From)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce for %s: %w", req.From.Hex(), err)
	}
	f.logger.Sugar().Debugw("Filled nonce", "from", req.From.Hex(), "nonce", nonce)
	out := req.Copy()
	out.SetNonce(nonce)
	return out, nil
}

// NewConfidentialProvider stacks the nonce filler over the encrypting layer
// over inner. The filler must be outermost so the encrypting layer sees the
// nonce it uses as the cipher nonce.
func NewConfidentialProvider(inner Provider, nonces NonceSource, logger *zap.Logger, opts ...Option) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seismic, err := NewSeismicProvider(inner, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return NewNonceFiller(seismic, nonces, logger)
}
