package simulation

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/strategy"
)

// RejectCapacity is recorded when opening a group would exceed the cap.
const RejectCapacity = "capacity"

// Result is the outcome of one simulation pass.
type Result struct {
	RunID  string
	Ledger []*domain.TradeRecord // in close order

	Candles    int
	Opened     int            // positions opened, all roles
	Rejections map[string]int // reason -> count

	InitialBalance float64
	FinalEquity    float64
	PeakEquity     float64
	MaxDrawdown    float64 // fraction in [0, 1]

	MaxOpenPositions     int     // highest simultaneous open count
	MaxConcurrentAdverse float64 // highest per-candle sum of open paper losses
}

// Engine runs simulations. It holds only immutable configuration, so one
// Engine may run many passes, concurrently if needed.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for trade context and rejections.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine. Returns an error for structurally invalid config.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run simulates rule over frames and returns the ledger.
//
// For every candle, in ascending time order:
//  1. update adverse excursion and decide exits for all open positions
//  2. ask the rule for entries and open the accepted ones
//  3. book every close of the candle as one batch, ascending by position ID
//
// Positions still open on the last candle close at its close price with
// reason still_open_at_data_end and no fee, in the same batch as that
// candle's other exits.
func (e *Engine) Run(runID string, frames []domain.IndicatorFrame, rule strategy.EntryRule) *Result {
	r := &run{
		cfg:    e.cfg,
		logger: e.logger.With(zap.String("run_id", runID), zap.String("rule", rule.ID())),
		runID:  runID,
		frames: frames,
		nextID: 1,
		equity: e.cfg.InitialBalance,
		peak:   e.cfg.InitialBalance,
		res: &Result{
			RunID:          runID,
			Candles:        len(frames),
			Rejections:     make(map[string]int),
			InitialBalance: e.cfg.InitialBalance,
		},
	}

	for i := range frames {
		r.step(i, rule)
	}

	r.res.FinalEquity = r.equity
	r.res.PeakEquity = r.peak
	r.res.MaxDrawdown = r.maxDD
	return r.res
}

// run is the mutable state of one pass. Never shared between goroutines.
type run struct {
	cfg    Config
	logger *zap.Logger
	runID  string
	frames []domain.IndicatorFrame

	open    []*domain.Position // ascending by ID
	pending []exitDecision     // closes decided on the current candle
	nextID  int

	equity float64
	peak   float64
	maxDD  float64

	day      string
	dailyRef float64

	res *Result
}

type exitDecision struct {
	pos    *domain.Position
	price  float64
	reason string
	fee    bool
}

func (r *run) step(i int, rule strategy.EntryRule) {
	f := &r.frames[i]
	r.rollDay(f)
	r.applyExits(i)
	r.applyEntries(i, rule)
	r.observe(f)
	if i == len(r.frames)-1 {
		r.closeRemaining(f)
	}
	r.settle(f.Timestamp)
}

// rollDay resets the daily reference to the first open of each UTC day.
func (r *run) rollDay(f *domain.IndicatorFrame) {
	day := f.Timestamp.UTC().Format("2006-01-02")
	if day != r.day {
		r.day = day
		r.dailyRef = f.Open
	}
}

func (r *run) applyExits(i int) {
	f := &r.frames[i]

	closed := make(map[int]struct{})
	for _, p := range r.open {
		p.AdverseExcursion = math.Max(p.AdverseExcursion, adverseAt(p, &f.Candle, r.cfg.PipValue))
		if d, ok := r.exitFor(p, i); ok {
			r.pending = append(r.pending, d)
			closed[p.ID] = struct{}{}
		}
	}
	if len(closed) > 0 {
		r.removeClosed(closed)
	}
}

// exitFor checks exit rules in priority order: stop, target, signal
// reversal, time limit. The first match wins.
func (r *run) exitFor(p *domain.Position, i int) (exitDecision, bool) {
	f := &r.frames[i]
	long := p.Direction == domain.DirectionLong

	if p.Stop != nil {
		if (long && f.Low <= *p.Stop) || (!long && f.High >= *p.Stop) {
			return exitDecision{pos: p, price: *p.Stop, reason: domain.ExitReasonStopHit, fee: true}, true
		}
	}

	if (long && f.High >= p.Target) || (!long && f.Low <= p.Target) {
		return exitDecision{pos: p, price: p.Target, reason: domain.ExitReasonTargetHit, fee: true}, true
	}

	if r.cfg.ReversalExit && (p.Role == domain.RoleLong || p.Role == domain.RoleShort) && i > 0 {
		prev := &r.frames[i-1]
		if f.HasOscillator() && prev.HasOscillator() {
			if dir, crossed := signal.Crossing(prev, f); crossed && dir != p.Direction {
				return exitDecision{pos: p, price: f.Close, reason: domain.ExitReasonSignalReversal, fee: true}, true
			}
		}
	}

	if r.cfg.MaxHoldDays > 0 {
		days := calendarDays(p.EntryTime, f.Timestamp)
		if days > r.cfg.MaxHoldDays {
			mtm := grossPnL(p, f.Close, r.cfg.PipValue) + r.cfg.financing(p, days)
			if mtm > r.cfg.TimeLimitLossFloor {
				return exitDecision{pos: p, price: f.Close, reason: domain.ExitReasonTimeLimit, fee: true}, true
			}
		}
	}

	return exitDecision{}, false
}

func (r *run) applyEntries(i int, rule strategy.EntryRule) {
	f := &r.frames[i]

	in := &strategy.CandleInput{
		Index:          i,
		Frame:          f,
		DailyReference: r.dailyRef,
		Open:           r.openView(),
	}

	for _, prop := range rule.Propose(in) {
		if prop.Reject != "" {
			r.reject(prop.Reject, f)
			continue
		}

		group := r.expand(prop.Order)
		if limit := r.cfg.MaxOpenPositions; limit > 0 && len(r.open)+len(group) > limit {
			r.reject(RejectCapacity, f)
			continue
		}

		for _, o := range group {
			p := r.openPosition(o, i)
			if o.Intrabar && targetReached(p, &f.Candle) {
				r.pending = append(r.pending, exitDecision{pos: p, price: p.Target, reason: domain.ExitReasonTargetHitSameCandle, fee: true})
				r.removeClosed(map[int]struct{}{p.ID: {}})
			}
		}
	}
}

// expand applies the pairing rules to a primary order. The returned group
// is opened atomically: all or nothing under the concurrency cap.
func (r *run) expand(o *strategy.Order) []strategy.Order {
	group := []strategy.Order{*o}
	if o.Role != domain.RoleLong {
		return group
	}

	if h := r.cfg.HedgeShort; h != nil && !r.hasOpenLong() {
		stop := o.EntryPrice + h.StopOffset
		hedge := strategy.Order{
			Role:       domain.RoleShortHedge,
			SignalTime: o.SignalTime,
			EntryPrice: o.EntryPrice,
			Size:       h.Size,
			Target:     o.EntryPrice - h.TargetOffset,
			Intrabar:   o.Intrabar,
			Snapshot:   o.Snapshot,
		}
		if h.StopOffset > 0 {
			hedge.Stop = &stop
		}
		group = append(group, hedge)
	}

	if ps := r.cfg.PairedShort; ps != nil {
		entry := o.EntryPrice + ps.EntryOffset
		group = append(group, strategy.Order{
			Role:       domain.RoleShortPaired,
			SignalTime: o.SignalTime,
			EntryPrice: entry,
			Size:       o.Size * ps.SizeFraction,
			Target:     entry - ps.TargetOffset,
			Intrabar:   o.Intrabar,
			Snapshot:   o.Snapshot,
		})
	}

	return group
}

func (r *run) openPosition(o strategy.Order, i int) *domain.Position {
	f := &r.frames[i]
	p := &domain.Position{
		ID:             r.nextID,
		Role:           o.Role,
		Direction:      o.Role.Direction(),
		SignalTime:     o.SignalTime,
		EntryTime:      f.Timestamp,
		EntryIndex:     i,
		EntryPrice:     o.EntryPrice,
		Size:           o.Size,
		Stop:           o.Stop,
		Target:         o.Target,
		Status:         domain.PositionOpen,
		DailyReference: r.dailyRef,
		Snapshot:       o.Snapshot,
	}
	r.nextID++
	p.AdverseExcursion = adverseAt(p, &f.Candle, r.cfg.PipValue)

	r.open = append(r.open, p)
	r.res.Opened++
	return p
}

func targetReached(p *domain.Position, c *domain.Candle) bool {
	if p.Direction == domain.DirectionShort {
		return c.Low <= p.Target
	}
	return c.High >= p.Target
}

// close moves p to the ledger and books its net P&L into equity.
func (r *run) close(p *domain.Position, at time.Time, price float64, reason string, chargeFee bool) {
	days := calendarDays(p.EntryTime, at)
	gross := grossPnL(p, price, r.cfg.PipValue)
	fin := r.cfg.financing(p, days)
	fee := 0.0
	if chargeFee {
		fee = r.cfg.FeePerRoundTrip
	}
	net := gross + fin - fee

	r.equity += net
	if r.equity > r.peak {
		r.peak = r.equity
	}
	r.maxDD = math.Max(r.maxDD, drawdown(r.peak, r.equity))

	p.Status = domain.PositionClosed

	rec := &domain.TradeRecord{
		TradeID:             idhash.ComputeTradeID(r.runID, p.ID, string(p.Role), p.EntryTime.UnixMilli()),
		RunID:               r.runID,
		PositionID:          p.ID,
		Role:                p.Role,
		Direction:           p.Direction,
		SignalTime:          p.SignalTime,
		EntryTime:           p.EntryTime,
		EntryPrice:          p.EntryPrice,
		Size:                p.Size,
		Stop:                p.Stop,
		Target:              p.Target,
		Signal:              p.Snapshot,
		ExitTime:            at,
		ExitPrice:           price,
		ExitReason:          reason,
		GrossPnL:            gross,
		FinancingCost:       fin,
		Fee:                 fee,
		MaxAdverseExcursion: p.AdverseExcursion,
		NetPnL:              net,
		EquityAfter:         r.equity,
		DaysHeld:            days,
		DailyReference:      p.DailyReference,
	}
	r.res.Ledger = append(r.res.Ledger, rec)
	r.logTrade(p, rec)
}

// closeRemaining queues every open position for closing at the last close.
func (r *run) closeRemaining(last *domain.IndicatorFrame) {
	for _, p := range r.open {
		r.pending = append(r.pending, exitDecision{pos: p, price: last.Close, reason: domain.ExitReasonStillOpenAtDataEnd})
	}
	r.open = nil
}

// settle books the candle's pending closes ascending by position ID, so the
// ledger stays ordered by exit time, then position ID.
func (r *run) settle(at time.Time) {
	if len(r.pending) == 0 {
		return
	}
	sort.Slice(r.pending, func(a, b int) bool {
		return r.pending[a].pos.ID < r.pending[b].pos.ID
	})
	for _, d := range r.pending {
		r.close(d.pos, at, d.price, d.reason, d.fee)
	}
	r.pending = r.pending[:0]
}

// observe records concurrency statistics after the candle settles.
func (r *run) observe(f *domain.IndicatorFrame) {
	if n := len(r.open); n > r.res.MaxOpenPositions {
		r.res.MaxOpenPositions = n
	}
	sum := 0.0
	for _, p := range r.open {
		sum += adverseAt(p, &f.Candle, r.cfg.PipValue)
	}
	if sum > r.res.MaxConcurrentAdverse {
		r.res.MaxConcurrentAdverse = sum
	}
}

func (r *run) removeClosed(closed map[int]struct{}) {
	kept := r.open[:0]
	for _, p := range r.open {
		if _, ok := closed[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(r.open); i++ {
		r.open[i] = nil
	}
	r.open = kept
}

func (r *run) hasOpenLong() bool {
	for _, p := range r.open {
		if p.Role == domain.RoleLong {
			return true
		}
	}
	return false
}

func (r *run) openView() []domain.Position {
	view := make([]domain.Position, len(r.open))
	for i, p := range r.open {
		view[i] = *p
	}
	return view
}

func (r *run) reject(reason string, f *domain.IndicatorFrame) {
	r.res.Rejections[reason]++
	r.logger.Debug("entry rejected",
		zap.String("reason", reason),
		zap.Time("candle", f.Timestamp),
		zap.Int("open_positions", len(r.open)),
	)
}

// logTrade logs losing trades with their signal context at Info, others at Debug.
func (r *run) logTrade(p *domain.Position, rec *domain.TradeRecord) {
	fields := []zap.Field{
		zap.Int("position_id", rec.PositionID),
		zap.String("role", string(rec.Role)),
		zap.Time("entry_time", rec.EntryTime),
		zap.Float64("entry_price", rec.EntryPrice),
		zap.Time("exit_time", rec.ExitTime),
		zap.Float64("exit_price", rec.ExitPrice),
		zap.String("exit_reason", rec.ExitReason),
		zap.Float64("net_pnl", rec.NetPnL),
		zap.Float64("equity_after", rec.EquityAfter),
	}
	if s := p.Snapshot; s != nil {
		fields = append(fields,
			zap.Float64("rsi", s.RSI),
			zap.Float64("rsi_sma", s.RSISMA),
			zap.String("trend", string(s.Trend)),
			zap.Float64s("supports", s.Supports),
			zap.Float64s("resistances", s.Resistances),
		)
		if s.ATR != nil {
			fields = append(fields, zap.Float64("atr", *s.ATR))
		}
	}

	if rec.NetPnL <= 0 {
		r.logger.Info("losing trade", fields...)
		return
	}
	r.logger.Debug("profitable trade", fields...)
}
