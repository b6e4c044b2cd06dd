package backtest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/indicator"
	"backtest-lab/internal/normalization"
	"backtest-lab/internal/storage"
)

// ErrNoCandles wraps every failure to load a candle series.
var ErrNoCandles = errors.New("load candles")

// Data is the normalized input of a run. It is read-only once loaded,
// so one Data may feed many concurrent runs.
type Data struct {
	Primary []domain.Candle
	Trend   []domain.Candle
	Levels  [][]domain.Candle // one series per configured level timeframe

	Dropped map[string]int // drop reason -> count, across all loaded series
}

// Loader reads and normalizes the series a configuration needs.
type Loader struct {
	candles storage.CandleStore
	logger  *zap.Logger
}

// NewLoader creates a loader over a candle store.
func NewLoader(candles storage.CandleStore, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{candles: candles, logger: logger}
}

// Load fetches the primary series and every coarse series. A coarse timeframe
// with no stored candles is resampled from the primary series.
// An empty primary series is not an error.
func (l *Loader) Load(ctx context.Context, cfg *config.Config) (*Data, error) {
	key := cfg.SeriesKey()
	raw, err := l.candles.GetRange(ctx, key, cfg.Series.Start, cfg.Series.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoCandles, key, err)
	}

	data := &Data{Dropped: make(map[string]int)}
	primary := l.normalize(key, raw, data.Dropped)
	data.Primary = primary
	primaryDropped := len(raw) - len(primary)

	data.Trend, err = l.coarse(ctx, cfg, cfg.Series.TrendTimeframe, primary, data.Dropped)
	if err != nil {
		return nil, err
	}
	for _, tf := range cfg.Series.LevelTimeframes {
		series, err := l.coarse(ctx, cfg, tf, primary, data.Dropped)
		if err != nil {
			return nil, err
		}
		data.Levels = append(data.Levels, series)
	}

	l.logger.Info("candles loaded",
		zap.String("series", key.String()),
		zap.Int("candles", len(primary)),
		zap.Int("dropped", primaryDropped),
		zap.Int("trend_candles", len(data.Trend)),
	)
	return data, nil
}

// normalize cleans one loaded series, logging each dropped candle and
// counting it by reason.
func (l *Loader) normalize(key domain.SeriesKey, raw []domain.Candle, counts map[string]int) []domain.Candle {
	series, dropped := normalization.NormalizeCandles(raw)
	for _, d := range dropped {
		counts[d.Reason]++
		l.logger.Warn("candle dropped",
			zap.String("series", key.String()),
			zap.Time("timestamp", d.Candle.Timestamp),
			zap.String("reason", d.Reason),
			zap.String("detail", d.Detail),
		)
	}
	return series
}

func (l *Loader) coarse(ctx context.Context, cfg *config.Config, tf domain.Timeframe, primary []domain.Candle, dropped map[string]int) ([]domain.Candle, error) {
	if tf == cfg.Series.Timeframe {
		return primary, nil
	}

	key := domain.SeriesKey{Symbol: cfg.Series.Symbol, Timeframe: tf}
	raw, err := l.candles.GetRange(ctx, key, cfg.Series.Start, cfg.Series.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoCandles, key, err)
	}
	if len(raw) > 0 {
		return l.normalize(key, raw, dropped), nil
	}

	series, err := normalization.Resample(primary, tf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCandles, err)
	}
	l.logger.Debug("coarse series resampled",
		zap.String("series", key.String()),
		zap.Int("candles", len(series)),
	)
	return series, nil
}

// Frames builds indicator frames for the primary series.
func (d *Data) Frames(cfg *config.Config) ([]domain.IndicatorFrame, error) {
	frames, err := indicator.Build(indicator.Inputs{
		Primary:          d.Primary,
		PrimaryTimeframe: cfg.Series.Timeframe,
		Trend:            d.Trend,
		TrendTimeframe:   cfg.Series.TrendTimeframe,
		Levels:           d.Levels,
		LevelTimeframes:  cfg.Series.LevelTimeframes,
	}, cfg.IndicatorConfig())
	if err != nil {
		return nil, fmt.Errorf("build indicators: %w", err)
	}
	return frames, nil
}
