package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"crowdchain/config"
	"crowdchain/core"
	"crowdchain/indexer"
	"crowdchain/observability/logging"
	telemetry "crowdchain/observability/otel"
	"crowdchain/rpc"
	"crowdchain/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	exportPath := flag.String("export-events", "", "Write the indexed event history to a parquet file and exit")
	flag.Parse()

	if *exportPath != "" {
		if err := exportEvents(*configFile, *exportPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := logging.SetupWithOptions(logging.Options{
		Service: "crowdd",
		Env:     cfg.Environment,
		Level:   logging.ParseLevel(cfg.LogLevel),
		File:    cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromNodeConfig("crowdd", cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	commission, err := cfg.Commission()
	if err != nil {
		return err
	}
	genesis, err := genesisAllocs(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	db, err := storage.Open(backend, ledgerPath(cfg.DataDir, backend))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	node, err := core.NewNode(db, core.Config{
		ChainID:    cfg.ChainID,
		Commission: commission,
		Logger:     logger,
		Genesis:    genesis,
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()

	var index *indexer.Store
	if strings.TrimSpace(cfg.Indexer.Driver) != "" {
		index, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		defer index.Close()
		go func() {
			if err := index.Run(ctx, node); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("indexer stopped", slog.Any("error", err))
			}
		}()
	}

	secret := strings.TrimSpace(os.Getenv(cfg.Auth.JWTSecretEnv))
	logAuthSettings(logger, cfg.Auth, secret)
	server := rpc.NewServer(node, index, rpc.ServerConfig{
		JWTSecret:         secret,
		Issuer:            cfg.Auth.Issuer,
		Audience:          cfg.Auth.Audience,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		TrustedProxies:    cfg.RateLimit.TrustedProxies,
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		Deployments:       cfg.Deployments,
		Logger:            logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server",
			slog.String("address", cfg.RPCAddress),
			slog.Uint64("chain_id", cfg.ChainID),
			slog.Uint64("fee_bps", uint64(commission.Bps)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return nil
}

// exportEvents dumps the indexer database without starting the node.
func exportEvents(configFile, path string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Indexer.Driver) == "" {
		return errors.New("export requires an indexer driver in the configuration")
	}
	index, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
	if err != nil {
		return err
	}
	defer index.Close()
	rows, err := index.ListAll(context.Background())
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if err := indexer.ExportParquet(path, rows); err != nil {
		return err
	}
	fmt.Printf("exported %d events to %s\n", len(rows), path)
	return nil
}

func logAuthSettings(logger *slog.Logger, auth config.AuthConfig, secret string) {
	if secret == "" {
		logger.Warn("JWT secret not set; mutating RPC methods are disabled", slog.String("env", auth.JWTSecretEnv))
		return
	}
	logger.Info("RPC authentication enabled",
		slog.String("env", auth.JWTSecretEnv),
		logging.MaskField("jwt_secret", secret),
		slog.String("issuer", auth.Issuer),
		slog.String("audience", auth.Audience))
}

func genesisAllocs(cfg *config.Config) ([]core.GenesisAlloc, error) {
	allocs := make([]core.GenesisAlloc, 0, len(cfg.Genesis))
	for i, acct := range cfg.Genesis {
		addr, err := config.ParseAddress(acct.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		balance, err := config.ParseAmount(acct.Balance)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		allocs = append(allocs, core.GenesisAlloc{Address: addr, Balance: balance})
	}
	return allocs, nil
}

func ledgerPath(dataDir, backend string) string {
	if backend == "bolt" {
		return filepath.Join(dataDir, "ledger.db")
	}
	return filepath.Join(dataDir, "ledger")
}
