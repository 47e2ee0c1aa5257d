package cli

import (
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/seismic-proxy/pkg/signer"
	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testTo      = "0xd3e8763675e4c425df46cc3b5c0f6cbdac396046"
)

var allFlags = []cli.Flag{
	RPCURLFlag, PrivateKeyFlag, MnemonicFlag, TimeoutFlag, Debug,
	FromFlag, ToFlag, DataFlag, ValueFlag, GasFlag, GasPriceFlag, EIP712Flag, WaitFlag,
}

// runWith parses args with every flag registered and hands the context to fn.
func runWith(t *testing.T, args []string, fn func(c *cli.Context) error) {
	t.Helper()
	app := &cli.App{
		Name:   "test",
		Flags:  allFlags,
		Action: fn,
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
}

func TestNewConfigFromCLI(t *testing.T) {
	t.Setenv("SEISMIC_RPC_URL", "http://node:8545")

	var cfg *Config
	runWith(t, []string{"--private-key", testKey, "--timeout", "5s", "--debug"}, func(c *cli.Context) error {
		cfg = NewConfigFromCLI(c)
		return nil
	})
	require.Equal(t, "http://node:8545", cfg.RPCURL)
	require.Equal(t, testKey, cfg.PrivateKey)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.True(t, cfg.Debug)

	s, err := cfg.Signer()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testAddress), s.Address())
}

func TestConfigSigner(t *testing.T) {
	s, err := (&Config{}).Signer()
	require.NoError(t, err)
	require.Nil(t, s)

	_, err = (&Config{PrivateKey: testKey, Mnemonic: "abandon"}).Signer()
	require.ErrorContains(t, err, "--private-key and --mnemonic")

	s, err = (&Config{Mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"}).Signer()
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestNewTxRequestFromCLI(t *testing.T) {
	from := common.HexToAddress(testAddress)
	var req *types.TransactionRequest
	runWith(t, []string{
		"--to", testTo,
		"--data", "a22cb465",
		"--value", "1000",
		"--gas", "21000",
		"--gas-price", "0x3b9aca00",
		"--eip712",
	}, func(c *cli.Context) error {
		var err error
		req, err = NewTxRequestFromCLI(c, from)
		return err
	})

	require.True(t, req.IsSeismic())
	require.Equal(t, common.HexToAddress(testTo), *req.To)
	require.Equal(t, from, *req.From)
	require.Equal(t, []byte{0xa2, 0x2c, 0xb4, 0x65}, req.InputBytes())
	require.Equal(t, big.NewInt(1000), req.Value.ToInt())
	require.Equal(t, big.NewInt(1_000_000_000), req.GasPrice.ToInt())
	require.Equal(t, hexutil.Uint64(21000), *req.Gas)
	require.Equal(t, uint8(1), *req.EIP712Version)
	require.Nil(t, req.Nonce)
}

func TestNewTxRequestFromCLIRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"--to", "not-an-address"},
		{"--data", "0xzz"},
		{"--value", "ten"},
	}
	for _, args := range cases {
		app := &cli.App{
			Name:  "test",
			Flags: allFlags,
			Action: func(c *cli.Context) error {
				_, err := NewTxRequestFromCLI(c, common.Address{})
				return err
			},
		}
		require.Error(t, app.Run(append([]string{"test"}, args...)), "args %v", args)
	}
}

func TestResolveFrom(t *testing.T) {
	s, err := signer.FromHex(testKey)
	require.NoError(t, err)

	runWith(t, nil, func(c *cli.Context) error {
		from, err := ResolveFrom(c, s)
		require.NoError(t, err)
		require.Equal(t, s.Address(), from)

		_, err = ResolveFrom(c, nil)
		require.Error(t, err)
		return nil
	})

	runWith(t, []string{"--from", testTo}, func(c *cli.Context) error {
		from, err := ResolveFrom(c, nil)
		require.NoError(t, err)
		require.Equal(t, common.HexToAddress(testTo), from)

		_, err = ResolveFrom(c, s)
		require.Error(t, err)
		return nil
	})
}

func TestDescribeRawTx(t *testing.T) {
	s, err := signer.FromHex(testKey)
	require.NoError(t, err)
	to := common.HexToAddress(testTo)
	stx, err := s.SignTx(&types.TxSeismic{
		ChainID:  5124,
		Nonce:    1,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      100_000,
		To:       &to,
		Value:    uint256.NewInt(0),
		Input:    []byte{0x01, 0x02},
	})
	require.NoError(t, err)
	raw, err := stx.MarshalBinary()
	require.NoError(t, err)

	desc, err := DescribeRawTx(hexutil.Encode(raw))
	require.NoError(t, err)
	require.Equal(t, stx.Hash, desc.Hash)
	require.Equal(t, s.Address(), desc.From)
	require.Equal(t, uint64(1), desc.Tx.Nonce)

	_, err = DescribeRawTx(hexutil.Encode(raw)[4:])
	require.Error(t, err)

	_, err = DescribeRawTx("0x02c0")
	require.ErrorIs(t, err, types.ErrUnexpectedTxType)
}
