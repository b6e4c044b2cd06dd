// Command sweep evaluates a grid of long/short thresholds over one candle
// series and writes a comparison table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/ingest"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/stores"
	"backtest-lab/internal/sweep"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	candlesPath := flag.String("candles", "", "CSV of primary candles to import first (required with --use-memory)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	outputDir := flag.String("output-dir", "output", "Directory for sweep.md and sweep_summary.csv (empty disables)")
	longs := flag.String("long", "", "Comma-separated long thresholds (overrides sweep.long_thresholds)")
	shorts := flag.String("short", "", "Comma-separated short thresholds (overrides sweep.short_thresholds)")
	workers := flag.Int("workers", 0, "Parallel simulations (overrides sweep.workers, 0 = GOMAXPROCS)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *longs != "" {
		if cfg.Sweep.LongThresholds, err = parseList(*longs); err != nil {
			logger.Fatal("parse --long", zap.Error(err))
		}
	}
	if *shorts != "" {
		if cfg.Sweep.ShortThresholds, err = parseList(*shorts); err != nil {
			logger.Fatal("parse --short", zap.Error(err))
		}
	}
	if *workers > 0 {
		cfg.Sweep.Workers = *workers
	}
	if *useMemory && *candlesPath == "" {
		logger.Fatal("--candles is required with --use-memory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	set, err := stores.Open(ctx, cfg.Storage, *useMemory, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer set.Close()

	if *candlesPath != "" {
		f, err := os.Open(*candlesPath)
		if err != nil {
			logger.Fatal("open candles", zap.Error(err))
		}
		_, err = ingest.NewImporter(set.Candles, logger).Import(ctx, cfg.SeriesKey(), f)
		f.Close()
		if err != nil {
			logger.Fatal("import candles", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics("")
	bt := backtest.NewRunner(backtest.Stores{
		Candles:   set.Candles,
		Trades:    set.Trades,
		Runs:      set.Runs,
		Summaries: set.Summaries,
	}, backtest.WithLogger(logger), backtest.WithMetrics(metrics), backtest.WithMode(backtest.ModeSweep))

	results, err := sweep.NewRunner(bt, logger, metrics).Run(ctx, cfg)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}

	fmt.Printf("%-16s  %-22s  %6s  %8s  %12s\n", "params", "label", "trades", "win%", "net P&L")
	for _, r := range results {
		fmt.Printf("%-16s  %-22s  %6d  %7.2f%%  %12.2f\n",
			r.ParamsID, r.Summary.Label, r.Summary.TotalTrades, r.Summary.WinRate*100, r.Summary.TotalNetPnL)
	}
	if best, ok := sweep.Best(results); ok {
		fmt.Printf("\nBest: %s (run %s) net P&L %.2f\n", best.Summary.Label, best.RunID, best.Summary.TotalNetPnL)
	}

	if *outputDir != "" {
		paths, err := reporting.WriteSweepFiles(*outputDir, sweep.Summaries(results))
		if err != nil {
			logger.Fatal("write sweep report", zap.Error(err))
		}
		for _, p := range paths {
			fmt.Printf("  - %s\n", p)
		}
	}
}

func parseList(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
