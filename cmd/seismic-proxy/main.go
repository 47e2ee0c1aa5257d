package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	seismiccli "github.com/Layr-Labs/seismic-proxy/internal/cli"
	"github.com/Layr-Labs/seismic-proxy/internal/config"
	"github.com/Layr-Labs/seismic-proxy/internal/metrics"
	"github.com/Layr-Labs/seismic-proxy/internal/proxy"
	"github.com/Layr-Labs/seismic-proxy/pkg/clients/rpcClient"
	"github.com/Layr-Labs/seismic-proxy/pkg/signer"
	"github.com/Layr-Labs/seismic-proxy/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "seismic-proxy",
		Usage: "JSON-RPC proxy that encrypts seismic calls and transactions to the node's enclave",
		Flags: []cli.Flag{
			seismiccli.ConfigFileFlag,
		},
		Action: runProxy,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runProxy(c *cli.Context) error {
	cfg, err := config.Load(c.String(seismiccli.ConfigFileFlag.Name))
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	l, err := seismiccli.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []proxy.Option{proxy.WithMetrics(m)}
	var provider transport.Provider
	if cfg.Mode != config.ModeOff {
		var client *rpcClient.Client
		provider, client, err = newProvider(ctx, cfg, l)
		if err != nil {
			return err
		}
		defer client.Close()
		if client.HasSigner() {
			opts = append(opts, proxy.WithDefaultFrom(client.SignerAddress()))
		}
	}

	h, err := proxy.NewHandler(cfg, provider, l, opts...)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l.Sugar().Infow("seismic-proxy listening",
		"addr", cfg.ListenAddr,
		"upstream", cfg.Upstream.String(),
		"mode", cfg.Mode,
		"localSigner", cfg.HasSigner(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Sugar().Infow("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProvider(ctx context.Context, cfg *config.Config, l *zap.Logger) (transport.Provider, *rpcClient.Client, error) {
	s, err := signer.Load(cfg.PrivateKey, cfg.Mnemonic)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load signer: %w", err)
	}

	upstream := cfg.Upstream.String()
	if s == nil {
		p, client, err := rpcClient.NewUnsignedProvider(ctx, upstream, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to upstream: %w", err)
		}
		return p, client, nil
	}
	l.Sugar().Infow("Using local signer", "address", s.Address().Hex())
	p, client, err := rpcClient.NewSignedProvider(ctx, upstream, s, l)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to upstream: %w", err)
	}
	return p, client, nil
}
