// Package config loads backtest configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/indicator"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/simulation"
	"backtest-lab/internal/strategy"
)

// ErrInvalidConfig wraps every structural validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables read by LoadEnv.
const (
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickhouseDSN = "CLICKHOUSE_DSN"
	EnvLogLevel      = "LOG_LEVEL"
)

// Config is the complete configuration of a backtest or sweep.
type Config struct {
	Series     SeriesConfig    `yaml:"series"`
	Indicators IndicatorConfig `yaml:"indicators"`
	Signals    SignalConfig    `yaml:"signals"`
	Entry      EntryConfig     `yaml:"entry"`
	Account    AccountConfig   `yaml:"account"`
	Sweep      SweepConfig     `yaml:"sweep"`
	Log        LogConfig       `yaml:"log"`

	// Secrets come from the environment only.
	Storage StorageConfig `yaml:"-"`
}

// SeriesConfig selects the candle series.
type SeriesConfig struct {
	Symbol          string             `yaml:"symbol"`
	Timeframe       domain.Timeframe   `yaml:"timeframe"`
	TrendTimeframe  domain.Timeframe   `yaml:"trend_timeframe"`
	LevelTimeframes []domain.Timeframe `yaml:"level_timeframes"`
	Start           time.Time          `yaml:"start"` // zero = from the first candle
	End             time.Time          `yaml:"end"`   // zero = to the last candle
}

// IndicatorConfig holds indicator periods.
type IndicatorConfig struct {
	RSIPeriod    int `yaml:"rsi_period"`
	RSISMAPeriod int `yaml:"rsi_sma_period"`
	ATRPeriod    int `yaml:"atr_period"`
	TrendPeriod  int `yaml:"trend_period"`
}

// SignalConfig holds signal filters.
type SignalConfig struct {
	LongThreshold       float64        `yaml:"long_threshold"`
	ShortThreshold      float64        `yaml:"short_threshold"`
	RequiredTrend       domain.Trend   `yaml:"required_trend"` // empty disables the regime filter
	NearnessMultiple    float64        `yaml:"nearness_multiple"`
	NearnessFallbackPct float64        `yaml:"nearness_fallback_pct"`
	Windows             []WindowConfig `yaml:"windows"` // empty = whole day
}

// WindowConfig is a UTC time-of-day interval, "HH:MM:SS" strings.
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// EntryConfig selects the entry rule.
type EntryConfig struct {
	Rule            string       `yaml:"rule"` // crossover | ladder
	Size            float64      `yaml:"size"`
	MinStopDistance float64      `yaml:"min_stop_distance"`
	Ladder          LadderConfig `yaml:"ladder"`
}

// LadderConfig parameterizes the daily-drop ladder.
type LadderConfig struct {
	DropPct    float64  `yaml:"drop_pct"`
	Step       float64  `yaml:"step"`
	TakeProfit float64  `yaml:"take_profit"`
	StopOffset *float64 `yaml:"stop_offset"`
}

// AccountConfig holds money and risk settings.
type AccountConfig struct {
	InitialBalance         float64            `yaml:"initial_balance"`
	PipValue               float64            `yaml:"pip_value"`
	MaxOpenPositions       int                `yaml:"max_open_positions"`
	FeePerRoundTrip        float64            `yaml:"fee_per_round_trip"`
	FinancingLongPerNight  float64            `yaml:"financing_long_per_night"`
	FinancingShortPerNight float64            `yaml:"financing_short_per_night"`
	MaxHoldDays            int                `yaml:"max_hold_days"`
	TimeLimitLossFloor     float64            `yaml:"time_limit_loss_floor"`
	ReversalExit           bool               `yaml:"reversal_exit"`
	PairedShort            *PairedShortConfig `yaml:"paired_short"`
	HedgeShort             *HedgeShortConfig  `yaml:"hedge_short"`
}

// PairedShortConfig opens a short alongside every long.
type PairedShortConfig struct {
	EntryOffset  float64 `yaml:"entry_offset"`
	TargetOffset float64 `yaml:"target_offset"`
	SizeFraction float64 `yaml:"size_fraction"`
}

// HedgeShortConfig opens a protective short with the first long of a cluster.
type HedgeShortConfig struct {
	Size         float64 `yaml:"size"`
	TargetOffset float64 `yaml:"target_offset"`
	StopOffset   float64 `yaml:"stop_offset"`
}

// SweepConfig defines the threshold grid.
type SweepConfig struct {
	LongThresholds  []float64 `yaml:"long_thresholds"`
	ShortThresholds []float64 `yaml:"short_thresholds"`
	Workers         int       `yaml:"workers"` // 0 = GOMAXPROCS
}

// LogConfig controls the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// StorageConfig holds connection strings.
type StorageConfig struct {
	PostgresDSN   string
	ClickhouseDSN string
}

// Default returns the configuration of the 5-minute silver crossover study.
func Default() *Config {
	ind := indicator.DefaultConfig()
	sig := signal.DefaultConfig()
	sim := simulation.DefaultConfig()

	windows := make([]WindowConfig, 0, len(sig.Windows))
	for _, w := range sig.Windows {
		windows = append(windows, WindowConfig{Start: w.Start.String(), End: w.End.String()})
	}

	return &Config{
		Series: SeriesConfig{
			Symbol:          "XAGUSD",
			Timeframe:       domain.Timeframe5Min,
			TrendTimeframe:  domain.Timeframe15Min,
			LevelTimeframes: []domain.Timeframe{domain.Timeframe15Min, domain.Timeframe4Hour},
		},
		Indicators: IndicatorConfig{
			RSIPeriod:    ind.RSIPeriod,
			RSISMAPeriod: ind.RSISMAPeriod,
			ATRPeriod:    ind.ATRPeriod,
			TrendPeriod:  ind.TrendPeriod,
		},
		Signals: SignalConfig{
			LongThreshold:       sig.LongThreshold,
			ShortThreshold:      sig.ShortThreshold,
			RequiredTrend:       sig.RequiredTrend,
			NearnessMultiple:    sig.NearnessMultiple,
			NearnessFallbackPct: sig.NearnessFallbackPct,
			Windows:             windows,
		},
		Entry: EntryConfig{
			Rule:            strategy.RuleCrossover,
			Size:            200,
			MinStopDistance: 0.1,
		},
		Account: AccountConfig{
			InitialBalance:     sim.InitialBalance,
			PipValue:           sim.PipValue,
			MaxOpenPositions:   sim.MaxOpenPositions,
			MaxHoldDays:        sim.MaxHoldDays,
			TimeLimitLossFloor: sim.TimeLimitLossFloor,
			ReversalExit:       sim.ReversalExit,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) over Default(), then applies the
// environment and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML snapshot, as stored with each run, over Default()
// and validates it. The environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads .env if present and applies DSNs and log level from the environment.
func (c *Config) LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickhouseDSN); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks structural problems only. Thresholds that can never
// trade are accepted.
func (c *Config) Validate() error {
	if c.Series.Symbol == "" {
		return fmt.Errorf("%w: series.symbol is required", ErrInvalidConfig)
	}
	for _, tf := range append([]domain.Timeframe{c.Series.Timeframe, c.Series.TrendTimeframe}, c.Series.LevelTimeframes...) {
		if _, ok := tf.Duration(); !ok {
			return fmt.Errorf("%w: unknown timeframe %q", ErrInvalidConfig, tf)
		}
	}
	if !c.Series.End.IsZero() && c.Series.End.Before(c.Series.Start) {
		return fmt.Errorf("%w: series.end before series.start", ErrInvalidConfig)
	}

	if err := c.IndicatorConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Signals.RequiredTrend {
	case "", domain.TrendUp, domain.TrendDown, domain.TrendSideways:
	default:
		return fmt.Errorf("%w: unknown required_trend %q", ErrInvalidConfig, c.Signals.RequiredTrend)
	}
	if _, err := c.windows(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Entry.Rule {
	case strategy.RuleCrossover, strategy.RuleLadder:
	default:
		return fmt.Errorf("%w: %v %q", ErrInvalidConfig, strategy.ErrUnknownEntryRule, c.Entry.Rule)
	}
	if c.Entry.Size <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, strategy.ErrInvalidSize)
	}

	if err := c.SimulationConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Sweep.Workers < 0 {
		return fmt.Errorf("%w: sweep.workers must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SeriesKey returns the primary series key.
func (c *Config) SeriesKey() domain.SeriesKey {
	return domain.SeriesKey{Symbol: c.Series.Symbol, Timeframe: c.Series.Timeframe}
}

// IndicatorConfig converts to the indicator layer configuration.
func (c *Config) IndicatorConfig() indicator.Config {
	return indicator.Config{
		RSIPeriod:    c.Indicators.RSIPeriod,
		RSISMAPeriod: c.Indicators.RSISMAPeriod,
		ATRPeriod:    c.Indicators.ATRPeriod,
		TrendPeriod:  c.Indicators.TrendPeriod,
	}
}

// SignalConfig converts to the signal generator configuration.
func (c *Config) SignalConfig() (signal.Config, error) {
	windows, err := c.windows()
	if err != nil {
		return signal.Config{}, err
	}
	return signal.Config{
		LongThreshold:       c.Signals.LongThreshold,
		ShortThreshold:      c.Signals.ShortThreshold,
		Windows:             windows,
		RequiredTrend:       c.Signals.RequiredTrend,
		NearnessMultiple:    c.Signals.NearnessMultiple,
		NearnessFallbackPct: c.Signals.NearnessFallbackPct,
	}, nil
}

// StrategyConfig converts to the entry rule configuration.
func (c *Config) StrategyConfig() strategy.Config {
	return strategy.Config{
		Rule: c.Entry.Rule,
		Crossover: strategy.CrossoverConfig{
			Size:            c.Entry.Size,
			MinStopDistance: c.Entry.MinStopDistance,
		},
		Ladder: strategy.LadderConfig{
			Size:       c.Entry.Size,
			DropPct:    c.Entry.Ladder.DropPct,
			Step:       c.Entry.Ladder.Step,
			TakeProfit: c.Entry.Ladder.TakeProfit,
			StopOffset: c.Entry.Ladder.StopOffset,
		},
	}
}

// SimulationConfig converts to the position simulator configuration.
func (c *Config) SimulationConfig() simulation.Config {
	a := c.Account
	cfg := simulation.Config{
		InitialBalance:         a.InitialBalance,
		PipValue:               a.PipValue,
		MaxOpenPositions:       a.MaxOpenPositions,
		FinancingLongPerNight:  a.FinancingLongPerNight,
		FinancingShortPerNight: a.FinancingShortPerNight,
		FeePerRoundTrip:        a.FeePerRoundTrip,
		MaxHoldDays:            a.MaxHoldDays,
		TimeLimitLossFloor:     a.TimeLimitLossFloor,
		ReversalExit:           a.ReversalExit,
	}
	if p := a.PairedShort; p != nil {
		cfg.PairedShort = &simulation.PairedShortConfig{
			EntryOffset:  p.EntryOffset,
			TargetOffset: p.TargetOffset,
			SizeFraction: p.SizeFraction,
		}
	}
	if h := a.HedgeShort; h != nil {
		cfg.HedgeShort = &simulation.HedgeShortConfig{
			Size:         h.Size,
			TargetOffset: h.TargetOffset,
			StopOffset:   h.StopOffset,
		}
	}
	return cfg
}

// Label describes the signal parameters, e.g. "long<46 short>60".
func (c *Config) Label() string {
	if c.Entry.Rule == strategy.RuleLadder {
		return fmt.Sprintf("ladder drop=%g step=%g tp=%g", c.Entry.Ladder.DropPct, c.Entry.Ladder.Step, c.Entry.Ladder.TakeProfit)
	}
	return fmt.Sprintf("long<%g short>%g", c.Signals.LongThreshold, c.Signals.ShortThreshold)
}

// Marshal returns the YAML snapshot stored with each run. Secrets are excluded.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Series.LevelTimeframes = append([]domain.Timeframe(nil), c.Series.LevelTimeframes...)
	out.Signals.Windows = append([]WindowConfig(nil), c.Signals.Windows...)
	out.Sweep.LongThresholds = append([]float64(nil), c.Sweep.LongThresholds...)
	out.Sweep.ShortThresholds = append([]float64(nil), c.Sweep.ShortThresholds...)
	if c.Entry.Ladder.StopOffset != nil {
		v := *c.Entry.Ladder.StopOffset
		out.Entry.Ladder.StopOffset = &v
	}
	if c.Account.PairedShort != nil {
		v := *c.Account.PairedShort
		out.Account.PairedShort = &v
	}
	if c.Account.HedgeShort != nil {
		v := *c.Account.HedgeShort
		out.Account.HedgeShort = &v
	}
	return &out
}

func (c *Config) windows() ([]signal.Window, error) {
	out := make([]signal.Window, 0, len(c.Signals.Windows))
	for _, w := range c.Signals.Windows {
		parsed, err := signal.ParseWindow(w.Start, w.End)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
