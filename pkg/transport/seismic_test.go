package transport

import (
	"context"
	"errors"
	mrand "math/rand"
	"testing"

	"github.com/Layr-Labs/seismic-proxy/pkg/crypto"
	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

// fakeEnclave is an inner provider that plays the node: it decrypts inputs
// with the enclave key and, for calls, echoes the plaintext back encrypted.
type fakeEnclave struct {
	key     *secp256k1.PrivateKey
	pubkey  []byte
	keyErr  error
	callErr error

	keyCalls  int
	calls     []*types.TransactionRequest
	sends     []*types.TransactionRequest
	plaintext [][]byte
	response  func(plaintext []byte) []byte
}

func newFakeEnclave(t *testing.T) *fakeEnclave {
	t.Helper()
	k, err := crypto.NewEphemeralKey(mrand.New(mrand.NewSource(99)))
	require.NoError(t, err)
	return &fakeEnclave{key: k.Private(), pubkey: k.Private().PubKey().SerializeCompressed()}
}

func (f *fakeEnclave) GetTeePublicKey(context.Context) ([]byte, error) {
	f.keyCalls++
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return f.pubkey, nil
}

func (f *fakeEnclave) open(req *types.TransactionRequest) ([]byte, *secp256k1.PublicKey, error) {
	if req.EncryptionPubkey == nil {
		return req.InputBytes(), nil, nil
	}
	client, err := secp256k1.ParsePubKey(*req.EncryptionPubkey)
	if err != nil {
		return nil, nil, err
	}
	pt, err := crypto.EcdhDecrypt(client, f.key, req.InputBytes(), uint64(*req.Nonce))
	return pt, client, err
}

func (f *fakeEnclave) Call(_ context.Context, req *types.TransactionRequest) (hexutil.Bytes, error) {
	f.calls = append(f.calls, req)
	if f.callErr != nil {
		return nil, f.callErr
	}
	pt, client, err := f.open(req)
	if err != nil {
		return nil, err
	}
	f.plaintext = append(f.plaintext, pt)
	out := pt
	if f.response != nil {
		out = f.response(pt)
	}
	if client == nil {
		return out, nil
	}
	return crypto.EcdhEncrypt(client, f.key, out, uint64(*req.Nonce))
}

func (f *fakeEnclave) SendTransaction(_ context.Context, req *types.TransactionRequest) (*PendingTransaction, error) {
	f.sends = append(f.sends, req)
	pt, _, err := f.open(req)
	if err != nil {
		return nil, err
	}
	f.plaintext = append(f.plaintext, pt)
	return NewPendingTransaction(common.HexToHash("0x01"), nil), nil
}

func eligibleRequest(nonce uint64) *types.TransactionRequest {
	req := types.BuildSeismicTx([]byte("secret calldata"), &common.Address{0x01}, common.Address{0x02})
	req.SetNonce(nonce)
	return req
}

func TestShouldEncrypt(t *testing.T) {
	require.True(t, ShouldEncrypt(eligibleRequest(0)))

	noNonce := types.BuildSeismicTx([]byte{1}, nil, common.Address{})
	require.False(t, ShouldEncrypt(noNonce))

	noInput := types.BuildSeismicTx(nil, nil, common.Address{})
	noInput.SetNonce(1)
	require.False(t, ShouldEncrypt(noInput))

	require.False(t, ShouldEncrypt(nil))
}

func TestCallEncryptsAndDecrypts(t *testing.T) {
	inner := newFakeEnclave(t)
	inner.response = func(pt []byte) []byte { return append([]byte("result:"), pt...) }
	p, err := NewSeismicProvider(inner, WithRand(mrand.New(mrand.NewSource(1))))
	require.NoError(t, err)

	req := eligibleRequest(7)
	out, err := p.Call(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "result:secret calldata", string(out))

	require.Len(t, inner.calls, 1)
	sent := inner.calls[0]
	require.NotEqual(t, []byte("secret calldata"), sent.InputBytes())
	require.NotNil(t, sent.EncryptionPubkey)
	require.Len(t, *sent.EncryptionPubkey, crypto.PublicKeySize)
	require.Equal(t, []byte("secret calldata"), inner.plaintext[0])

	// caller's request is untouched
	require.Equal(t, []byte("secret calldata"), req.InputBytes())
	require.Nil(t, req.EncryptionPubkey)
}

func TestSendEncryptsAndPassesPendingThrough(t *testing.T) {
	inner := newFakeEnclave(t)
	p, err := NewSeismicProvider(inner)
	require.NoError(t, err)

	pending, err := p.SendTransaction(context.Background(), eligibleRequest(3))
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x01"), pending.Hash)

	require.Len(t, inner.sends, 1)
	require.NotEqual(t, []byte("secret calldata"), inner.sends[0].InputBytes())
	require.Equal(t, []byte("secret calldata"), inner.plaintext[0])
}

func TestIneligibleRequestsPassThrough(t *testing.T) {
	inner := newFakeEnclave(t)
	p, err := NewSeismicProvider(inner)
	require.NoError(t, err)

	req := types.BuildSeismicTx([]byte("plain"), &common.Address{0x01}, common.Address{})
	out, err := p.Call(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "plain", string(out))
	require.Same(t, req, inner.calls[0])
	require.Zero(t, inner.keyCalls)

	_, err = p.SendTransaction(context.Background(), req)
	require.NoError(t, err)
	require.Same(t, req, inner.sends[0])
	require.Zero(t, inner.keyCalls)
}

func TestFreshEphemeralKeyPerCall(t *testing.T) {
	inner := newFakeEnclave(t)
	p, err := NewSeismicProvider(inner)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := p.Call(context.Background(), eligibleRequest(1))
		require.NoError(t, err)
	}
	require.Equal(t, 2, inner.keyCalls)
	require.NotEqual(t, *inner.calls[0].EncryptionPubkey, *inner.calls[1].EncryptionPubkey)
}

func TestFailuresBeforeInnerAreTransportErrors(t *testing.T) {
	t.Run("key fetch", func(t *testing.T) {
		inner := newFakeEnclave(t)
		inner.keyErr = errors.New("connection refused")
		p, err := NewSeismicProvider(inner)
		require.NoError(t, err)

		_, err = p.Call(context.Background(), eligibleRequest(1))
		require.ErrorIs(t, err, ErrRemoteKeyFetch)
		var te *TransportError
		require.ErrorAs(t, err, &te)
		require.Empty(t, inner.calls)

		_, err = p.SendTransaction(context.Background(), eligibleRequest(1))
		require.ErrorIs(t, err, ErrRemoteKeyFetch)
		require.Empty(t, inner.sends)
	})

	t.Run("key decode", func(t *testing.T) {
		inner := newFakeEnclave(t)
		inner.pubkey = []byte{0x02, 0x01}
		p, err := NewSeismicProvider(inner)
		require.NoError(t, err)

		_, err = p.Call(context.Background(), eligibleRequest(1))
		require.ErrorIs(t, err, ErrKeyDecode)
		require.Empty(t, inner.calls)
	})

	t.Run("key generation", func(t *testing.T) {
		inner := newFakeEnclave(t)
		p, err := NewSeismicProvider(inner, WithRand(failingReader{}))
		require.NoError(t, err)

		_, err = p.SendTransaction(context.Background(), eligibleRequest(1))
		require.ErrorIs(t, err, ErrKeyGeneration)
		require.Empty(t, inner.sends)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestCallDecryptFailureIsAnError(t *testing.T) {
	inner := newFakeEnclave(t)
	p, err := NewSeismicProvider(inner)
	require.NoError(t, err)

	// a node that answers in plaintext must not leak through as a result
	plain := &plaintextNode{fakeEnclave: inner}
	p.inner = plain
	out, err := p.Call(context.Background(), eligibleRequest(1))
	require.ErrorIs(t, err, ErrDecryption)
	require.Nil(t, out)
}

type plaintextNode struct {
	*fakeEnclave
}

func (n *plaintextNode) Call(context.Context, *types.TransactionRequest) (hexutil.Bytes, error) {
	return hexutil.Bytes("not ciphertext at all"), nil
}

func TestInnerErrorsPassThrough(t *testing.T) {
	inner := newFakeEnclave(t)
	boom := errors.New("execution reverted")
	inner.callErr = boom
	p, err := NewSeismicProvider(inner)
	require.NoError(t, err)

	_, err = p.Call(context.Background(), eligibleRequest(1))
	require.ErrorIs(t, err, boom)
	var te *TransportError
	require.False(t, errors.As(err, &te))
}

func TestNewSeismicProviderRequiresInner(t *testing.T) {
	_, err := NewSeismicProvider(nil)
	require.Error(t, err)
}
