package strategy

import (
	"fmt"
	"math"

	"backtest-lab/internal/domain"
)

// CrossoverConfig parameterizes signal-driven entries.
type CrossoverConfig struct {
	Size            float64 // position size
	MinStopDistance float64 // price units; closer stops are rejected
}

// Crossover opens one position per signal on the signal's entry bar, with
// stop and target taken from the signal's support/resistance snapshot.
type Crossover struct {
	cfg     CrossoverConfig
	byEntry map[int]domain.Signal // entry bar index -> signal
}

// Compile-time interface check.
var _ EntryRule = (*Crossover)(nil)

// NewCrossover creates a rule over signals. Signals must come from one
// generator pass, so no two share an entry bar.
func NewCrossover(cfg CrossoverConfig, signals []domain.Signal) *Crossover {
	byEntry := make(map[int]domain.Signal, len(signals))
	for _, s := range signals {
		byEntry[s.EntryIndex] = s
	}
	return &Crossover{cfg: cfg, byEntry: byEntry}
}

// ID returns rule identifier.
func (c *Crossover) ID() string {
	return fmt.Sprintf("CROSSOVER_size%g_minsl%g", c.cfg.Size, c.cfg.MinStopDistance)
}

// Propose returns at most one proposal: the signal entering at this bar.
func (c *Crossover) Propose(in *CandleInput) []Proposal {
	s, ok := c.byEntry[in.Index]
	if !ok {
		return nil
	}

	order, reject := c.orderFor(s)
	if reject != "" {
		return []Proposal{{Reject: reject}}
	}
	return []Proposal{{Order: order}}
}

func (c *Crossover) orderFor(s domain.Signal) (*Order, string) {
	stop, target, ok := StopTarget(s.Direction, s.EntryPrice, s.Snapshot.Supports, s.Snapshot.Resistances)
	if !ok {
		return nil, RejectNoLevels
	}

	risk := math.Abs(s.EntryPrice - stop)
	reward := math.Abs(target - s.EntryPrice)
	if risk < c.cfg.MinStopDistance || risk == 0 {
		return nil, RejectStopTooClose
	}
	if reward < risk {
		return nil, RejectRewardBelowRisk
	}

	role := domain.RoleLong
	if s.Direction == domain.DirectionShort {
		role = domain.RoleShort
	}

	snap := s.Snapshot
	return &Order{
		Role:       role,
		SignalTime: s.SignalTime,
		EntryPrice: s.EntryPrice,
		Size:       c.cfg.Size,
		Stop:       &stop,
		Target:     target,
		Snapshot:   &snap,
	}, ""
}
