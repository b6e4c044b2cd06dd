// Package simulation is the position simulator: a single deterministic
// forward pass over indicator frames that opens, monitors and closes
// positions and produces the trade ledger.
package simulation

import (
	"errors"
	"fmt"
)

// Config errors
var (
	ErrInvalidBalance  = errors.New("initial balance must be positive")
	ErrInvalidPipValue = errors.New("pip value must be positive")
	ErrInvalidCap      = errors.New("max open positions must not be negative")
	ErrInvalidPairing  = errors.New("paired short requires positive size fraction")
	ErrInvalidHedge    = errors.New("hedge short requires positive size and target offset")
)

// Config is the immutable simulator configuration.
type Config struct {
	InitialBalance float64 // starting equity, account currency
	PipValue       float64 // currency per unit price move per unit size

	MaxOpenPositions int // concurrency cap across all roles, 0 = unlimited

	FinancingLongPerNight  float64 // signed, per unit size per calendar day held
	FinancingShortPerNight float64 // signed, per unit size per calendar day held
	FeePerRoundTrip        float64 // flat, charged on every completed close

	// Time-limit rule, disabled when MaxHoldDays is 0.
	MaxHoldDays        int     // close once calendar days held exceeds this
	TimeLimitLossFloor float64 // only if mark-to-market (gross + financing) is above this

	ReversalExit bool // close long/short positions when RSI crosses back

	PairedShort *PairedShortConfig // nil disables pairing
	HedgeShort  *HedgeShortConfig  // nil disables hedging
}

// PairedShortConfig opens a short alongside every long.
type PairedShortConfig struct {
	EntryOffset  float64 // short entry = long entry + EntryOffset
	TargetOffset float64 // short target = short entry - TargetOffset
	SizeFraction float64 // short size = long size * SizeFraction
}

// HedgeShortConfig opens a fixed-size protective short with the first long
// of a cluster (when no other long is open).
type HedgeShortConfig struct {
	Size         float64 // fixed size
	TargetOffset float64 // target = entry - TargetOffset
	StopOffset   float64 // stop = entry + StopOffset
}

// DefaultConfig returns the account and risk settings of the crossover study.
func DefaultConfig() Config {
	return Config{
		InitialBalance:     100000,
		PipValue:           1,
		MaxOpenPositions:   30,
		MaxHoldDays:        90,
		TimeLimitLossFloor: -5000,
		ReversalExit:       true,
	}
}

// Validate checks structural problems. Thresholds that make trading
// impossible are not errors.
func (c Config) Validate() error {
	if c.InitialBalance <= 0 {
		return ErrInvalidBalance
	}
	if c.PipValue <= 0 {
		return ErrInvalidPipValue
	}
	if c.MaxOpenPositions < 0 {
		return ErrInvalidCap
	}
	if c.MaxHoldDays < 0 {
		return fmt.Errorf("max hold days must not be negative: %d", c.MaxHoldDays)
	}
	if c.PairedShort != nil && c.PairedShort.SizeFraction <= 0 {
		return ErrInvalidPairing
	}
	if c.HedgeShort != nil && (c.HedgeShort.Size <= 0 || c.HedgeShort.TargetOffset <= 0) {
		return ErrInvalidHedge
	}
	return nil
}
