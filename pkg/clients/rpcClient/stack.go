package rpcClient

import (
	"context"

	"github.com/Layr-Labs/seismic-proxy/pkg/transport"
	"go.uber.org/zap"
)

// NewSignedProvider dials rawURL and returns the confidential stack over a
// client that signs locally with signer.
func NewSignedProvider(ctx context.Context, rawURL string, signer Signer, logger *zap.Logger, opts ...ClientOption) (transport.Provider, *Client, error) {
	c, err := Dial(ctx, rawURL, signer, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	p, err := transport.NewConfidentialProvider(c, c, logger)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return p, c, nil
}

// NewUnsignedProvider is NewSignedProvider without a local signer; sends go
// through eth_sendTransaction.
func NewUnsignedProvider(ctx context.Context, rawURL string, logger *zap.Logger, opts ...ClientOption) (transport.Provider, *Client, error) {
	return NewSignedProvider(ctx, rawURL, nil, logger, opts...)
}
