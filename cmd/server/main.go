// Command server serves stored runs, ledgers and summaries over HTTP,
// together with Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/api"
	"backtest-lab/internal/config"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/stores"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	useMemory := flag.Bool("use-memory", false, "Use empty in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	cfg := config.Default()
	if err := cfg.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	set, err := stores.Open(ctx, cfg.Storage, *useMemory, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer set.Close()

	server := api.NewServer(api.Options{
		RunStore:     set.Runs,
		TradeStore:   set.Trades,
		SummaryStore: set.Summaries,
		Metrics:      observability.NewMetrics(""),
		Logger:       logger,
	})

	if err := server.ListenAndServe(ctx, *addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
