package strategy

import (
	"errors"

	"backtest-lab/internal/domain"
)

// Entry rule kinds
const (
	RuleCrossover = "crossover"
	RuleLadder    = "ladder"
)

// Factory errors
var (
	ErrUnknownEntryRule  = errors.New("unknown entry rule")
	ErrInvalidSize       = errors.New("position size must be positive")
	ErrInvalidDropPct    = errors.New("LADDER requires DropPct in (0, 1)")
	ErrInvalidStep       = errors.New("LADDER requires positive Step")
	ErrInvalidTakeProfit = errors.New("LADDER requires positive TakeProfit")
)

// Config selects and parameterizes an entry rule.
type Config struct {
	Rule      string // RuleCrossover | RuleLadder
	Crossover CrossoverConfig
	Ladder    LadderConfig
}

// FromConfig creates an EntryRule. Signals are used by the crossover rule
// and ignored by the ladder.
func FromConfig(cfg Config, signals []domain.Signal) (EntryRule, error) {
	switch cfg.Rule {
	case RuleCrossover, "":
		if cfg.Crossover.Size <= 0 {
			return nil, ErrInvalidSize
		}
		return NewCrossover(cfg.Crossover, signals), nil
	case RuleLadder:
		return fromLadderConfig(cfg.Ladder)
	default:
		return nil, ErrUnknownEntryRule
	}
}

// fromLadderConfig validates ladder parameters.
func fromLadderConfig(cfg LadderConfig) (*Ladder, error) {
	if cfg.Size <= 0 {
		return nil, ErrInvalidSize
	}
	if cfg.DropPct <= 0 || cfg.DropPct >= 1 {
		return nil, ErrInvalidDropPct
	}
	if cfg.Step <= 0 {
		return nil, ErrInvalidStep
	}
	if cfg.TakeProfit <= 0 {
		return nil, ErrInvalidTakeProfit
	}
	return NewLadder(cfg), nil
}
