// streamtest connects to the LedgerX WebSocket and streams parsed events to
// the console. Useful for verifying credentials and watching live book tops.
// Usage: go run ./cmd/streamtest --contracts 22256362,22256363
//
// The API key is read from the LEDGERX_API_KEY environment variable (a .env
// file is honored).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openderiv/ledgerx-data/auth"
	"github.com/openderiv/ledgerx-data/stream"
)

func main() {
	wsURL := flag.String("url", "", "WebSocket URL (default production)")
	contracts := flag.String("contracts", "", "comma-separated contract IDs to subscribe")
	heartbeatTimeout := flag.Duration("heartbeat-timeout", 30*time.Second, "heartbeat staleness cutoff")
	verbose := flag.Bool("verbose", false, "print heartbeats too")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	godotenv.Load()

	creds := auth.Credentials{APIKey: os.Getenv("LEDGERX_API_KEY")}
	if creds.IsZero() {
		logger.Error("LEDGERX_API_KEY is not set")
		os.Exit(1)
	}

	contractIDs, err := parseContractIDs(*contracts)
	if err != nil {
		logger.Error("invalid --contracts", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := stream.DefaultConfig()
	cfg.Credentials = creds
	cfg.HeartbeatTimeout = *heartbeatTimeout
	if *wsURL != "" {
		cfg.URL = *wsURL
	}

	mgr := stream.NewManager(cfg, logger)
	for _, id := range contractIDs {
		mgr.Subscribe(id)
	}

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming started - press Ctrl+C to stop",
		"state", mgr.State().String(),
		"subscriptions", len(mgr.Subscriptions()),
	)

	for {
		select {
		case <-ctx.Done():
			mgr.Close()
			logger.Info("shutdown complete")
			return
		case ev, ok := <-mgr.Events():
			if !ok {
				logger.Info("event stream closed")
				return
			}
			printEvent(ev, *verbose)
		}
	}
}

func printEvent(ev stream.Event, verbose bool) {
	switch ev.Kind {
	case stream.KindBookTop:
		top := ev.BookTop
		fmt.Printf("[BOOK_TOP] contract=%d bid=%s x%d ask=%s x%d ts=%d\n",
			top.ContractID, top.BidPrice, top.BidSize, top.AskPrice, top.AskSize, top.Timestamp)
	case stream.KindBalance:
		for _, b := range ev.Balances {
			fmt.Printf("[BALANCE] asset=%s available=%s locked=%s\n", b.Asset, b.Available, b.Locked)
		}
	case stream.KindPosition:
		for _, p := range ev.Positions {
			fmt.Printf("[POSITION] contract=%d size=%d side=%s\n", p.ContractID, p.Size, p.Side)
		}
	case stream.KindFill:
		fmt.Printf("[FILL] mid=%s contract=%d filled=%d\n", ev.Fill.MID, ev.Fill.ContractID, ev.Fill.FilledSize)
	case stream.KindStateManifest:
		fmt.Printf("[MANIFEST] open_orders=%d\n", ev.Manifest.OpenOrderCount)
	case stream.KindHeartbeat:
		if verbose {
			fmt.Printf("[HEARTBEAT] ticks=%d run_id=%d\n", ev.Heartbeat.Ticks, ev.Heartbeat.RunID)
		}
	case stream.KindError:
		fmt.Printf("[ERROR] %v\n", ev.Err)
	}
}

func parseContractIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad contract ID %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
