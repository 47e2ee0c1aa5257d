package cli

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	RPCURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "Seismic node RPC URL (e.g. http://localhost:8545)",
		Value:   "http://127.0.0.1:8545",
		EnvVars: []string{"SEISMIC_RPC_URL"},
	}

	PrivateKeyFlag = &cli.StringFlag{
		Name:    "private-key",
		Usage:   "Hex secp256k1 key used to sign transactions locally",
		EnvVars: []string{"SEISMIC_PRIVATE_KEY"},
	}

	MnemonicFlag = &cli.StringFlag{
		Name:    "mnemonic",
		Usage:   "BIP-39 mnemonic the signing key is derived from",
		EnvVars: []string{"SEISMIC_MNEMONIC"},
	}

	TimeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "Overall deadline for the command",
		Value:   2 * time.Minute,
		EnvVars: []string{"SEISMIC_TIMEOUT"},
	}

	Debug = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "Enable debug logging",
		EnvVars: []string{"DEBUG"},
	}

	FromFlag = &cli.StringFlag{
		Name:  "from",
		Usage: "Sender address, defaults to the local signer",
	}

	ToFlag = &cli.StringFlag{
		Name:  "to",
		Usage: "Recipient contract address, empty for contract creation",
	}

	DataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "Plaintext calldata as hex; encrypted before it leaves the process",
	}

	ValueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "Value in wei, decimal or 0x-prefixed hex",
	}

	GasFlag = &cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas limit, estimated when omitted",
	}

	GasPriceFlag = &cli.StringFlag{
		Name:  "gas-price",
		Usage: "Gas price in wei, fetched from the node when omitted",
	}

	EIP712Flag = &cli.BoolFlag{
		Name:  "eip712",
		Usage: "Sign with EIP-712 typed data instead of the raw transaction hash",
	}

	WaitFlag = &cli.BoolFlag{
		Name:  "wait",
		Usage: "Wait for the transaction receipt",
	}

	ConfigFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Optional proxy config file (yaml, json or toml)",
		EnvVars: []string{"SEISMIC_PROXY_CONFIG"},
	}
)
