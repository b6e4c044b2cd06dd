// Command backtest runs one configuration over a stored candle series and
// writes the ledger, summary and markdown report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/ingest"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/stores"
	"backtest-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	candlesPath := flag.String("candles", "", "CSV of primary candles to import before the run (required with --use-memory)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	outputDir := flag.String("output-dir", "output", "Directory for report.md and CSVs (empty disables)")
	longThreshold := flag.Float64("long-threshold", 0, "Override signals.long_threshold")
	shortThreshold := flag.Float64("short-threshold", 0, "Override signals.short_threshold")
	verify := flag.Bool("verify", false, "Replay the stored run and check the ledger afterwards")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "long-threshold":
			cfg.Signals.LongThreshold = *longThreshold
		case "short-threshold":
			cfg.Signals.ShortThreshold = *shortThreshold
		}
	})

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

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

	runner := backtest.NewRunner(backtest.Stores{
		Candles:   set.Candles,
		Trades:    set.Trades,
		Runs:      set.Runs,
		Summaries: set.Summaries,
	}, backtest.WithLogger(logger))

	outcome, err := runner.Run(ctx, cfg)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
	printOutcome(outcome)

	if *outputDir != "" {
		report, err := reporting.NewGenerator(set.Runs, set.Trades, set.Summaries).Generate(ctx, outcome.Run.RunID)
		if err != nil {
			logger.Fatal("generate report", zap.Error(err))
		}
		paths, err := reporting.WriteRunFiles(*outputDir, report)
		if err != nil {
			logger.Fatal("write report", zap.Error(err))
		}
		for _, p := range paths {
			fmt.Printf("  - %s\n", p)
		}
	}

	if *verify {
		verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
			RunStore:    set.Runs,
			TradeStore:  set.Trades,
			CandleStore: set.Candles,
			Logger:      logger,
		})
		rep, err := verifier.VerifyRun(ctx, outcome.Run.RunID)
		if err != nil {
			logger.Fatal("verify run", zap.Error(err))
		}
		if !rep.OK() {
			logger.Fatal("verification failed",
				zap.Int("divergent", rep.DivergentTrades),
				zap.Int("missing", rep.Missing),
				zap.Int("unexpected", rep.Unexpected),
				zap.Int("violations", len(rep.Violations)),
			)
		}
		fmt.Printf("Verification passed: %d/%d trades matched\n", rep.MatchedTrades, rep.TotalTrades)
	}
}

func printOutcome(o *backtest.Outcome) {
	s := o.Summary
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", o.Run.RunID)
	fmt.Printf("Series:             %s %s\n", o.Run.Symbol, o.Run.Timeframe)
	fmt.Printf("Parameters:         %s\n", o.Run.Label)
	fmt.Printf("Candles:            %d\n", o.Run.Candles)
	fmt.Printf("Signals:            %d (crossings %d)\n", len(o.Signals.Signals), o.Signals.Crossings)
	fmt.Println()
	fmt.Printf("Trades:             %d (still open %d)\n", s.TotalTrades, s.StillOpen)
	fmt.Printf("Win rate:           %.2f%%\n", s.WinRate*100)
	fmt.Printf("Net P&L:            %.2f\n", s.TotalNetPnL)
	fmt.Printf("Profit factor:      %.2f\n", s.ProfitFactor)
	fmt.Printf("Final equity:       %.2f (%.2f%%)\n", s.FinalEquity, s.ReturnPct)
	fmt.Printf("Max drawdown:       %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("Max open positions: %d\n", o.Simulation.MaxOpenPositions)
	fmt.Println()
}
