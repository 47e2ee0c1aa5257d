package cli

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Layr-Labs/seismic-proxy/pkg/signer"
	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type Config struct {
	RPCURL     string
	PrivateKey string
	Mnemonic   string
	Timeout    time.Duration
	Debug      bool
}

func NewConfigFromCLI(c *cli.Context) *Config {
	return &Config{
		RPCURL:     c.String(RPCURLFlag.Name),
		PrivateKey: c.String(PrivateKeyFlag.Name),
		Mnemonic:   c.String(MnemonicFlag.Name),
		Timeout:    c.Duration(TimeoutFlag.Name),
		Debug:      c.Bool(Debug.Name),
	}
}

// Signer returns the configured local signer, or nil when neither a key nor
// a mnemonic was given.
func (cfg *Config) Signer() (*signer.LocalSigner, error) {
	s, err := signer.Load(cfg.PrivateKey, cfg.Mnemonic)
	if errors.Is(err, signer.ErrKeyAndMnemonic) {
		return nil, fmt.Errorf("--%s and --%s are mutually exclusive", PrivateKeyFlag.Name, MnemonicFlag.Name)
	}
	return s, err
}

func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewTxRequestFromCLI builds a seismic request carrying the plaintext
// calldata from the transaction flags.
func NewTxRequestFromCLI(c *cli.Context, from common.Address) (*types.TransactionRequest, error) {
	var to *common.Address
	if raw := strings.TrimSpace(c.String(ToFlag.Name)); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid --%s address %q", ToFlag.Name, raw)
		}
		addr := common.HexToAddress(raw)
		to = &addr
	}

	var data []byte
	if raw := strings.TrimSpace(c.String(DataFlag.Name)); raw != "" {
		if !strings.HasPrefix(raw, "0x") {
			raw = "0x" + raw
		}
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", DataFlag.Name, err)
		}
		data = b
	}

	req := types.BuildSeismicTx(data, to, from)
	if raw := c.String(ValueFlag.Name); raw != "" {
		v, err := parseWei(ValueFlag.Name, raw)
		if err != nil {
			return nil, err
		}
		req.Value = (*hexutil.Big)(v)
	}
	if raw := c.String(GasPriceFlag.Name); raw != "" {
		v, err := parseWei(GasPriceFlag.Name, raw)
		if err != nil {
			return nil, err
		}
		req.GasPrice = (*hexutil.Big)(v)
	}
	if c.IsSet(GasFlag.Name) {
		gas := hexutil.Uint64(c.Uint64(GasFlag.Name))
		req.Gas = &gas
	}
	if c.Bool(EIP712Flag.Name) {
		version := uint8(1)
		req.EIP712Version = &version
	}
	return req, nil
}

// ResolveFrom picks the sender: --from when given, else the signer.
func ResolveFrom(c *cli.Context, s *signer.LocalSigner) (common.Address, error) {
	if raw := strings.TrimSpace(c.String(FromFlag.Name)); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, fmt.Errorf("invalid --%s address %q", FromFlag.Name, raw)
		}
		from := common.HexToAddress(raw)
		if s != nil && from != s.Address() {
			return common.Address{}, fmt.Errorf("--%s %s does not match signer %s", FromFlag.Name, from.Hex(), s.Address().Hex())
		}
		return from, nil
	}
	if s == nil {
		return common.Address{}, fmt.Errorf("--%s is required without a signing key", FromFlag.Name)
	}
	return s.Address(), nil
}

func parseWei(flag, raw string) (*big.Int, error) {
	v, ok := math.ParseBig256(strings.TrimSpace(raw))
	if !ok {
		return nil, fmt.Errorf("invalid --%s %q", flag, raw)
	}
	return v, nil
}
