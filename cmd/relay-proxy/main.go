package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/internal/config"
	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/internal/metrics"
	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/proxy"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/pkg/felt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateProxy(); err != nil {
		log.Fatalf("Invalid proxy configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	p, err := provider.NewClient(ctx, cfg.UpstreamRPCURL)
	cancel()
	if err != nil {
		slog.Error("failed to connect to upstream", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	chainID, _ := p.ChainID(context.Background())
	if cfg.ChainID != "" {
		want, err := felt.FromString(cfg.ChainID)
		if err != nil || want != chainID {
			slog.Error("upstream serves a different chain", "configured", want.String(), "upstream", chainID.String())
			os.Exit(1)
		}
	}

	key, err := signer.FromHex(cfg.RelayerPrivateKey)
	if err != nil {
		slog.Error("invalid relayer key", "error", err)
		os.Exit(1)
	}
	relayerAddress := felt.MustFromHex(cfg.RelayerAddress)
	relayer := account.NewOwnerAccount(p, signer.Dual(signer.NewOwner(key), nil), relayerAddress, chainID)

	slog.Info("relayer ready", "address", relayerAddress.String(), "chain_id", chainID.String())

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	px := proxy.New(cfg.UpstreamRPCURL, relayer,
		proxy.WithMetrics(m),
		proxy.WithFeeMultiplier(cfg.FeeMultiplier),
	)
	server := proxy.NewServer(cfg, px, m)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		// In-flight relays keep the relayer lock until the node answers.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("server stopped")
	}
}
