// Command report renders stored runs into markdown and CSV files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/stores"
)

func main() {
	runID := flag.String("run-id", "", "Run ID to render (default: latest runs, see --last)")
	last := flag.Int("last", 1, "Number of latest runs to render when --run-id is empty")
	outputDir := flag.String("output-dir", "docs", "Output directory; each run gets a subdirectory")
	compare := flag.Bool("compare", false, "Also write a comparison table of the rendered runs")
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

	ctx := context.Background()

	set, err := stores.Open(ctx, cfg.Storage, false, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer set.Close()

	ids := []string{*runID}
	if *runID == "" {
		runs, err := set.Runs.List(ctx, *last)
		if err != nil {
			logger.Fatal("list runs", zap.Error(err))
		}
		if len(runs) == 0 {
			logger.Fatal("no stored runs")
		}
		ids = ids[:0]
		for _, r := range runs {
			ids = append(ids, r.RunID)
		}
	}

	gen := reporting.NewGenerator(set.Runs, set.Trades, set.Summaries)
	agg := metrics.NewAggregator(set.Trades, set.Summaries)
	var summaries []*domain.Summary
	for _, id := range ids {
		if err := backfillSummary(ctx, set, agg, id); err != nil {
			logger.Fatal("backfill summary", zap.String("run_id", id), zap.Error(err))
		}
		report, err := gen.Generate(ctx, id)
		if err != nil {
			logger.Fatal("generate report", zap.String("run_id", id), zap.Error(err))
		}
		paths, err := reporting.WriteRunFiles(filepath.Join(*outputDir, id), report)
		if err != nil {
			logger.Fatal("write report", zap.String("run_id", id), zap.Error(err))
		}
		summaries = append(summaries, report.Summary)

		fmt.Printf("Run %s (%s):\n", id, report.DataVersion)
		for _, p := range paths {
			fmt.Printf("  - %s\n", p)
		}
	}

	if *compare {
		paths, err := reporting.WriteSweepFiles(*outputDir, summaries)
		if err != nil {
			logger.Fatal("write comparison", zap.Error(err))
		}
		for _, p := range paths {
			fmt.Printf("  - %s\n", p)
		}
	}
}

// backfillSummary stores the summary of a completed run that has a ledger
// but no summary, e.g. when the summary write failed after the trades.
func backfillSummary(ctx context.Context, set *stores.Set, agg *metrics.Aggregator, runID string) error {
	_, err := set.Summaries.GetByRunID(ctx, runID)
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	run, err := set.Runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusCompleted {
		return nil
	}
	cfg, err := config.Parse(run.Config)
	if err != nil {
		return err
	}

	_, err = agg.ComputeAndStore(ctx, runID, run.Label, cfg.Account.InitialBalance)
	if errors.Is(err, metrics.ErrNoTrades) || errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}
