// Command ingest imports a CSV candle export into the candle store and
// derives the coarser series used for trend and levels.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/ingest"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/stores"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (series defaults)")
	file := flag.String("file", "", "CSV candle export to import (required)")
	symbol := flag.String("symbol", "", "Symbol to store under (default: series.symbol)")
	timeframe := flag.String("timeframe", "", "Timeframe of the file (default: series.timeframe)")
	resample := flag.String("resample", "", "Comma-separated timeframes to derive (default: trend and level timeframes)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (validates the file only)")
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

	if *file == "" {
		logger.Fatal("--file is required")
	}

	key := cfg.SeriesKey()
	if *symbol != "" {
		key.Symbol = *symbol
	}
	if *timeframe != "" {
		key.Timeframe = domain.Timeframe(*timeframe)
	}
	derive := derivedTimeframes(cfg, *resample)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	set, err := stores.Open(ctx, cfg.Storage, *useMemory, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer set.Close()

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	res, err := ingest.NewImporter(set.Candles, logger).Import(ctx, key, f, derive...)
	if err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}

	fmt.Printf("Imported %s from %s\n", res.Series, *file)
	fmt.Printf("  parsed:  %d\n", res.Parsed)
	fmt.Printf("  skipped: %d\n", res.Skipped)
	for reason, n := range res.Dropped {
		fmt.Printf("  dropped (%s): %d\n", reason, n)
	}
	fmt.Printf("  stored:  %d\n", res.Stored)

	tfs := make([]string, 0, len(res.Derived))
	for tf := range res.Derived {
		tfs = append(tfs, string(tf))
	}
	sort.Strings(tfs)
	for _, tf := range tfs {
		fmt.Printf("  derived %s: %d\n", tf, res.Derived[domain.Timeframe(tf)])
	}
}

// derivedTimeframes parses --resample, falling back to the configured
// trend and level timeframes.
func derivedTimeframes(cfg *config.Config, flagValue string) []domain.Timeframe {
	var out []domain.Timeframe
	if flagValue != "" {
		for _, p := range strings.Split(flagValue, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, domain.Timeframe(p))
			}
		}
		return out
	}

	seen := make(map[domain.Timeframe]bool)
	for _, tf := range append([]domain.Timeframe{cfg.Series.TrendTimeframe}, cfg.Series.LevelTimeframes...) {
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out
}
