package ingest

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/normalization"
	"backtest-lab/internal/storage"
)

// DefaultBatchSize is the number of candles written per UpsertBulk call.
const DefaultBatchSize = 5000

// Result summarizes one import.
type Result struct {
	Series  domain.SeriesKey
	Parsed  int
	Skipped int                      // unparseable records
	Dropped map[string]int           // normalization drop reason -> count
	Stored  int
	Derived map[domain.Timeframe]int // resampled timeframe -> candles stored
}

// Importer writes parsed candle files into a candle store.
type Importer struct {
	store     storage.CandleStore
	logger    *zap.Logger
	batchSize int
}

// NewImporter creates an importer.
func NewImporter(store storage.CandleStore, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger, batchSize: DefaultBatchSize}
}

// Import parses r, normalizes the candles and upserts them under key.
// Each timeframe in resample is derived from the normalized series and
// stored under the same symbol.
func (i *Importer) Import(ctx context.Context, key domain.SeriesKey, r io.Reader, resample ...domain.Timeframe) (*Result, error) {
	if _, ok := key.Timeframe.Duration(); !ok || key.Symbol == "" {
		return nil, fmt.Errorf("%w: series %s", storage.ErrInvalidInput, key)
	}

	parsed, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	for _, rowErr := range parsed.Errors {
		i.logger.Warn("csv row skipped", zap.Int("line", rowErr.Line), zap.Error(rowErr.Err))
	}

	if !normalization.IsNormalized(parsed.Candles) {
		i.logger.Info("input not in strictly ascending order, sorting",
			zap.String("series", key.String()),
		)
	}
	candles, dropped := normalization.NormalizeCandles(parsed.Candles)
	res := &Result{
		Series:  key,
		Parsed:  len(parsed.Candles),
		Skipped: parsed.Skipped,
		Dropped: make(map[string]int),
		Derived: make(map[domain.Timeframe]int),
	}
	for _, d := range dropped {
		res.Dropped[d.Reason]++
		i.logger.Warn("candle dropped",
			zap.String("series", key.String()),
			zap.Time("timestamp", d.Candle.Timestamp),
			zap.String("reason", d.Reason),
			zap.String("detail", d.Detail),
		)
	}

	if err := i.upsert(ctx, key, candles); err != nil {
		return nil, err
	}
	res.Stored = len(candles)

	for _, tf := range resample {
		if tf == key.Timeframe {
			continue
		}
		coarse, err := normalization.Resample(candles, tf)
		if err != nil {
			return nil, err
		}
		coarseKey := domain.SeriesKey{Symbol: key.Symbol, Timeframe: tf}
		if err := i.upsert(ctx, coarseKey, coarse); err != nil {
			return nil, err
		}
		res.Derived[tf] = len(coarse)
	}

	i.logger.Info("candles imported",
		zap.String("series", key.String()),
		zap.Int("parsed", res.Parsed),
		zap.Int("skipped", res.Skipped),
		zap.Int("dropped", len(dropped)),
		zap.Int("stored", res.Stored),
	)
	return res, nil
}

func (i *Importer) upsert(ctx context.Context, key domain.SeriesKey, candles []domain.Candle) error {
	for start := 0; start < len(candles); start += i.batchSize {
		end := min(start+i.batchSize, len(candles))
		if err := i.store.UpsertBulk(ctx, key, candles[start:end]); err != nil {
			return fmt.Errorf("upsert %s candles: %w", key, err)
		}
	}
	return nil
}
