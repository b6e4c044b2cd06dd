package metrics

import (
	"context"
	"errors"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ErrNoTrades is returned when no trades are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes run summaries from stored ledgers.
type Aggregator struct {
	tradeRecordStore storage.TradeRecordStore
	summaryStore     storage.SummaryStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(tradeStore storage.TradeRecordStore, summaryStore storage.SummaryStore) *Aggregator {
	return &Aggregator{
		tradeRecordStore: tradeStore,
		summaryStore:     summaryStore,
	}
}

// ComputeSummary loads the ledger of runID and summarizes it.
// Returns ErrNoTrades if the run has no trades.
func (a *Aggregator) ComputeSummary(ctx context.Context, runID, label string, initialBalance float64) (*domain.Summary, error) {
	trades, err := a.tradeRecordStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}

	s := Summarize(trades, initialBalance)
	s.RunID = runID
	s.Label = label
	return s, nil
}

// ComputeAndStore computes and persists the summary.
// Returns storage.ErrDuplicateKey if the run already has one.
func (a *Aggregator) ComputeAndStore(ctx context.Context, runID, label string, initialBalance float64) (*domain.Summary, error) {
	s, err := a.ComputeSummary(ctx, runID, label, initialBalance)
	if err != nil {
		return nil, err
	}

	if err := a.summaryStore.Insert(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}
