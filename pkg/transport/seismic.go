package transport

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Layr-Labs/seismic-proxy/pkg/crypto"
	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// SeismicProvider encrypts calldata to the enclave before handing requests to
// the inner provider, and decrypts eth_call results on the way back. It holds
// no per-call state; every encrypted call gets a fresh ephemeral key.
type SeismicProvider struct {
	inner  Provider
	rand   io.Reader
	logger *zap.Logger
}

type Option func(*SeismicProvider)

// WithRand sets the randomness source for ephemeral keys.
func WithRand(r io.Reader) Option {
	return func(p *SeismicProvider) {
		p.rand = r
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *SeismicProvider) {
		p.logger = l
	}
}

func NewSeismicProvider(inner Provider, opts ...Option) (*SeismicProvider, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner provider cannot be nil")
	}
	p := &SeismicProvider{
		inner:  inner,
		rand:   rand.Reader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.rand == nil {
		p.rand = rand.Reader
	}
	return p, nil
}

// ShouldEncrypt reports whether req is eligible for encryption: it must carry
// calldata and a nonce, since the nonce doubles as the cipher nonce.
func ShouldEncrypt(req *types.TransactionRequest) bool {
	return req != nil && len(req.InputBytes()) > 0 && req.Nonce != nil
}

func (p *SeismicProvider) GetTeePublicKey(ctx context.Context) ([]byte, error) {
	return p.inner.GetTeePublicKey(ctx)
}

// Call encrypts eligible requests, forwards them, and decrypts the result.
// Ineligible requests pass through untouched.
func (p *SeismicProvider) Call(ctx context.Context, req *types.TransactionRequest) (hexutil.Bytes, error) {
	if !ShouldEncrypt(req) {
		p.logger.Sugar().Debugw("Forwarding call unencrypted")
		return p.inner.Call(ctx, req)
	}
	s, encrypted, err := p.encrypt(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.close()

	out, err := p.inner.Call(ctx, encrypted)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.decrypt(out)
	if err != nil {
		return nil, transportErr(ErrDecryption, err)
	}
	return plaintext, nil
}

// SendTransaction encrypts eligible requests and forwards them. The pending
// transaction from the inner provider is returned as is.
func (p *SeismicProvider) SendTransaction(ctx context.Context, req *types.TransactionRequest) (*PendingTransaction, error) {
	if !ShouldEncrypt(req) {
		p.logger.Sugar().Debugw("Forwarding transaction unencrypted")
		return p.inner.SendTransaction(ctx, req)
	}
	s, encrypted, err := p.encrypt(ctx, req)
	if err != nil {
		return nil, err
	}
	s.close()
	return p.inner.SendTransaction(ctx, encrypted)
}

// session is the key material of one encrypted call.
type session struct {
	enclave *secp256k1.PublicKey
	key     *crypto.EphemeralKey
	nonce   uint64
}

func (s *session) decrypt(ciphertext []byte) ([]byte, error) {
	return crypto.EcdhDecrypt(s.enclave, s.key.Private(), ciphertext, s.nonce)
}

func (s *session) close() {
	s.key.Zero()
}

// encrypt returns a rewritten copy of req; the caller's request is left as is.
func (p *SeismicProvider) encrypt(ctx context.Context, req *types.TransactionRequest) (*session, *types.TransactionRequest, error) {
	raw, err := p.inner.GetTeePublicKey(ctx)
	if err != nil {
		return nil, nil, transportErr(ErrRemoteKeyFetch, err)
	}
	enclave, err := crypto.ParseEnclavePublicKey(raw)
	if err != nil {
		return nil, nil, transportErr(ErrKeyDecode, err)
	}
	key, err := crypto.NewEphemeralKey(p.rand)
	if err != nil {
		return nil, nil, transportErr(ErrKeyGeneration, err)
	}

	nonce := uint64(*req.Nonce)
	ciphertext, err := crypto.EcdhEncrypt(enclave, key.Private(), req.InputBytes(), nonce)
	if err != nil {
		key.Zero()
		return nil, nil, transportErr(ErrEncryption, err)
	}

	out := req.Copy()
	out.SetEncryptionPubkey(key.PublicKey())
	out.SetInput(ciphertext)

	p.logger.Sugar().Debugw("Encrypted request input",
		"nonce", nonce,
		"plaintext_len", len(req.InputBytes()),
		"ciphertext_len", len(ciphertext),
	)
	return &session{enclave: enclave, key: key, nonce: nonce}, out, nil
}
