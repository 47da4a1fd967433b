// recorder streams LedgerX book tops into TimescaleDB.
// Usage: go run ./cmd/recorder --config configs/recorder.local.yaml
//
// The API key is read from the LEDGERX_API_KEY environment variable (a
// .env file is honored) or from api.api_key in the config.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/openderiv/ledgerx-data/api"
	"github.com/openderiv/ledgerx-data/auth"
	"github.com/openderiv/ledgerx-data/internal/config"
	"github.com/openderiv/ledgerx-data/internal/database"
	"github.com/openderiv/ledgerx-data/internal/version"
	"github.com/openderiv/ledgerx-data/internal/writer"
	"github.com/openderiv/ledgerx-data/stream"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load .env before config so ${VAR} expansion sees it
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env file")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	apiKey := cfg.API.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("LEDGERX_API_KEY")
	}
	creds := auth.Credentials{APIKey: apiKey}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.RestURL,
		"authenticated", !creds.IsZero(),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Discover contracts to record
	restClient := api.NewClient(creds,
		api.WithBaseURL(cfg.API.RestURL),
		api.WithTradeURL(cfg.API.TradeURL),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithLogger(logger),
	)

	contractIDs, err := discoverContracts(ctx, restClient, cfg.Recorder, logger)
	if err != nil {
		logger.Error("contract discovery failed", "error", err)
		os.Exit(1)
	}
	if len(contractIDs) == 0 {
		logger.Error("no contracts matched the recorder scope")
		os.Exit(1)
	}
	logger.Info("contracts discovered", "count", len(contractIDs))

	// Wire up writer and stream
	bookTops := writer.NewBookTopWriter(cfg.Writer, pool, logger.With("component", "writer"))
	if err := bookTops.Start(ctx); err != nil {
		logger.Error("failed to start writer", "error", err)
		os.Exit(1)
	}

	mgr := stream.NewManager(stream.Config{
		URL:               cfg.API.WSURL,
		Credentials:       creds,
		HeartbeatTimeout:  cfg.Stream.HeartbeatTimeout,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxDelay,
		WriteTimeout:      5 * time.Second,
		EventBufferSize:   cfg.Stream.EventBufferSize,
	}, logger.With("component", "stream"))

	for _, id := range contractIDs {
		mgr.Subscribe(id)
	}

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect stream", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-mgr.Events():
				if !ok {
					return nil
				}
				if ev.Kind == stream.KindBookTop {
					bookTops.Write(*ev.BookTop)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("recorder stopped with error", "error", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	mgr.Close()
	bookTops.Stop(shutdownCtx)

	stats := bookTops.Stats()
	logger.Info("recorder stopped",
		"inserts", stats.Inserts,
		"conflicts", stats.Conflicts,
		"errors", stats.Errors,
		"dropped", stats.Dropped,
	)
}

// discoverContracts resolves the recorder scope to concrete contract IDs.
func discoverContracts(ctx context.Context, client *api.Client, scope config.RecorderScope, logger *slog.Logger) ([]int64, error) {
	seen := make(map[int64]struct{}, len(scope.ContractIDs))
	var ids []int64

	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, id := range scope.ContractIDs {
		add(id)
	}

	for _, derivType := range scope.DerivativeTypes {
		for _, asset := range scope.Assets {
			contracts, err := client.ListAllContracts(ctx, api.ListContractsOptions{
				Active:         true,
				DerivativeType: derivType,
				Asset:          asset,
			})
			if err != nil {
				return nil, err
			}
			logger.Debug("scope resolved",
				"derivative_type", derivType,
				"asset", asset,
				"contracts", len(contracts),
			)
			for _, c := range contracts {
				add(c.ID)
			}
		}
	}

	return ids, nil
}
