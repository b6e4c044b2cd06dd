// Command replay re-simulates stored runs from their config snapshot and
// compares the result with the stored ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/stores"
	"backtest-lab/internal/verification"
)

func main() {
	runID := flag.String("run-id", "", "Run ID to replay (default: the latest runs, see --last)")
	last := flag.Int("last", 1, "Number of latest runs to replay when --run-id is empty")
	outputJSON := flag.Bool("json", false, "Output reports as JSON")
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

	// Replays need persisted runs and candles, so memory storage is not offered.
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
		ids = ids[:0]
		for _, r := range runs {
			ids = append(ids, r.RunID)
		}
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RunStore:    set.Runs,
		TradeStore:  set.Trades,
		CandleStore: set.Candles,
		Logger:      logger,
	})

	failed := 0
	for _, id := range ids {
		rep, err := verifier.VerifyRun(ctx, id)
		if err != nil {
			logger.Error("replay failed", zap.String("run_id", id), zap.Error(err))
			failed++
			continue
		}
		if !rep.OK() {
			failed++
		}
		if *outputJSON {
			out, _ := json.MarshalIndent(rep, "", "  ")
			fmt.Println(string(out))
		} else {
			printReport(rep)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func printReport(r *verification.Report) {
	status := "OK"
	if !r.OK() {
		status = "FAILED"
	}
	fmt.Printf("Run %s: %s\n", r.RunID, status)
	fmt.Printf("  trades:     %d stored, %d matched, %d divergent\n", r.TotalTrades, r.MatchedTrades, r.DivergentTrades)
	fmt.Printf("  missing:    %d\n", r.Missing)
	fmt.Printf("  unexpected: %d\n", r.Unexpected)
	for _, tr := range r.Results {
		for _, d := range tr.Divergences {
			fmt.Printf("  position %d %s: stored=%v replayed=%v\n", tr.PositionID, d.Field, d.Expected, d.Actual)
		}
	}
	for _, v := range r.Violations {
		fmt.Printf("  violation %s (position %d): %s\n", v.Rule, v.PositionID, v.Detail)
	}
}
