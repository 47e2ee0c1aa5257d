package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	seismiccli "github.com/Layr-Labs/seismic-proxy/internal/cli"
	"github.com/Layr-Labs/seismic-proxy/pkg/clients/rpcClient"
	"github.com/Layr-Labs/seismic-proxy/pkg/signer"
	"github.com/Layr-Labs/seismic-proxy/pkg/transport"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "seismic-client",
		Usage: "Send confidential calls and transactions to a seismic node",
		Flags: []cli.Flag{
			seismiccli.RPCURLFlag,
			seismiccli.PrivateKeyFlag,
			seismiccli.MnemonicFlag,
			seismiccli.TimeoutFlag,
			seismiccli.Debug,
		},
		Commands: []*cli.Command{
			{
				Name:   "tee-pubkey",
				Usage:  "Print the enclave encryption public key",
				Action: runTeePubkey,
			},
			{
				Name:  "call",
				Usage: "Run an encrypted eth_call and print the decrypted result",
				Flags: []cli.Flag{
					seismiccli.FromFlag,
					seismiccli.ToFlag,
					seismiccli.DataFlag,
					seismiccli.ValueFlag,
					seismiccli.GasFlag,
					seismiccli.GasPriceFlag,
					seismiccli.EIP712Flag,
				},
				Action: runCall,
			},
			{
				Name:  "send",
				Usage: "Send an encrypted transaction",
				Flags: []cli.Flag{
					seismiccli.FromFlag,
					seismiccli.ToFlag,
					seismiccli.DataFlag,
					seismiccli.ValueFlag,
					seismiccli.GasFlag,
					seismiccli.GasPriceFlag,
					seismiccli.EIP712Flag,
					seismiccli.WaitFlag,
				},
				Action: runSend,
			},
			{
				Name:      "decode-tx",
				Usage:     "Decode a raw signed seismic transaction",
				ArgsUsage: "<raw-tx-hex>",
				Action:    runDecodeTx,
			},
			{
				Name:      "hash-tx",
				Usage:     "Print the canonical hash of a raw signed seismic transaction",
				ArgsUsage: "<raw-tx-hex>",
				Action:    runHashTx,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type session struct {
	cfg      *seismiccli.Config
	logger   *zap.Logger
	signer   *signer.LocalSigner
	provider transport.Provider
	client   *rpcClient.Client
}

func newSession(ctx context.Context, c *cli.Context) (*session, error) {
	cfg := seismiccli.NewConfigFromCLI(c)
	l, err := seismiccli.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	s, err := cfg.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to load signer: %w", err)
	}

	sess := &session{cfg: cfg, logger: l, signer: s}
	if s != nil {
		l.Sugar().Infow("Using local signer", "address", s.Address().Hex())
		sess.provider, sess.client, err = rpcClient.NewSignedProvider(ctx, cfg.RPCURL, s, l)
	} else {
		sess.provider, sess.client, err = rpcClient.NewUnsignedProvider(ctx, cfg.RPCURL, l)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}
	return sess, nil
}

func (s *session) close() {
	s.client.Close()
	_ = s.logger.Sync()
}

func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration(seismiccli.TimeoutFlag.Name))
}

func runTeePubkey(c *cli.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	sess, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer sess.close()

	key, err := sess.provider.GetTeePublicKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tee public key: %w", err)
	}
	fmt.Println(hexutil.Encode(key))
	return nil
}

func runCall(c *cli.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	sess, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer sess.close()

	from, err := seismiccli.ResolveFrom(c, sess.signer)
	if err != nil {
		return err
	}
	req, err := seismiccli.NewTxRequestFromCLI(c, from)
	if err != nil {
		return err
	}
	out, err := sess.provider.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	fmt.Println(out.String())
	return nil
}

func runSend(c *cli.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	sess, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer sess.close()

	from, err := seismiccli.ResolveFrom(c, sess.signer)
	if err != nil {
		return err
	}
	req, err := seismiccli.NewTxRequestFromCLI(c, from)
	if err != nil {
		return err
	}
	pending, err := sess.provider.SendTransaction(ctx, req)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	sess.logger.Sugar().Infow("Transaction submitted", "hash", pending.Hash.Hex())
	fmt.Println(pending.Hash.Hex())

	if !c.Bool(seismiccli.WaitFlag.Name) {
		return nil
	}
	receipt, err := pending.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for receipt: %w", err)
	}
	return printJSON(receipt)
}

func runDecodeTx(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one raw transaction argument")
	}
	desc, err := seismiccli.DescribeRawTx(c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(desc)
}

func runHashTx(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one raw transaction argument")
	}
	stx, err := seismiccli.DecodeRawTx(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(stx.Hash.Hex())
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
