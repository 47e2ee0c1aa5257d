package signer

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	// well-known anvil/hardhat account #0
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testTx(version uint8) *types.TxSeismic {
	to := common.HexToAddress("0xd3e8763675e4c425df46cc3b5c0f6cbdac396046")
	return &types.TxSeismic{
		ChainID:       5124,
		Nonce:         3,
		GasPrice:      big.NewInt(1_000_000_000),
		Gas:           50_000,
		To:            &to,
		Value:         uint256.NewInt(0),
		EIP712Version: version,
		Input:         []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestFromHexAddress(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = FromHex("0x1234")
	require.Error(t, err)
	_, err = FromHex("zz")
	require.Error(t, err)
	_, err = FromHex("0x0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestFromMnemonicIsDeterministic(t *testing.T) {
	a, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)
	b, err := FromMnemonic("  " + testMnemonic + "\n")
	require.NoError(t, err)
	require.Equal(t, a.Address(), b.Address())

	_, err = FromMnemonic("not a mnemonic")
	require.Error(t, err)
	_, err = FromMnemonic("")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	s, err := Load("", " ")
	require.NoError(t, err)
	require.Nil(t, s)

	s, err = Load(testKey, "")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testAddress), s.Address())

	m, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)
	s, err = Load("", testMnemonic)
	require.NoError(t, err)
	require.Equal(t, m.Address(), s.Address())

	_, err = Load(testKey, testMnemonic)
	require.ErrorIs(t, err, ErrKeyAndMnemonic)

	_, err = Load("0x1234", "")
	require.Error(t, err)
}

func TestSignHashRecoversAddress(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)

	hash := ethcrypto.Keccak256Hash([]byte("hello"))
	sig, err := s.SignHash(hash)
	require.NoError(t, err)

	addr, err := types.RecoverAddress(hash, sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), addr)

	pub, err := ethcrypto.SigToPub(hash[:], sig.Bytes())
	require.NoError(t, err)
	require.Equal(t, s.Address(), ethcrypto.PubkeyToAddress(*pub))
}

func TestSignTxBothModes(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)

	for _, version := range []uint8{0, 1} {
		stx, err := s.SignTx(testTx(version))
		require.NoError(t, err)

		sender, err := stx.Sender()
		require.NoError(t, err)
		require.Equal(t, s.Address(), sender)

		raw, err := stx.MarshalBinary()
		require.NoError(t, err)
		var dec types.SignedTxSeismic
		require.NoError(t, dec.UnmarshalBinary(raw))
		require.Equal(t, stx.Hash, dec.Hash)
	}
}

func TestSignTypedData(t *testing.T) {
	s, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)

	_, err = s.SignTypedData(testTx(0))
	require.Error(t, err)

	req, err := s.SignTypedData(testTx(1))
	require.NoError(t, err)
	sender, err := req.Sender()
	require.NoError(t, err)
	require.Equal(t, s.Address(), sender)
}

func TestSignEthTx(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)

	chainID := big.NewInt(5124)
	to := common.HexToAddress("0x0000000000000000000000000000000000000002")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1)})

	signed, err := s.SignEthTx(tx, chainID)
	require.NoError(t, err)
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, s.Address(), from)
}
