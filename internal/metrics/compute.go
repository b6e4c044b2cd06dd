package metrics

import (
	"math"
	"sort"

	"backtest-lab/internal/domain"
)

// Summarize computes the performance summary of a ledger.
// Trades are sorted by ExitTime ASC, PositionID ASC (close order) before
// computing order-dependent metrics (MaxDrawdown, MaxConsecutiveLosses).
// An empty ledger yields zero metrics and FinalEquity = initialBalance.
func Summarize(ledger []*domain.TradeRecord, initialBalance float64) *domain.Summary {
	s := &domain.Summary{
		InitialBalance: initialBalance,
		FinalEquity:    initialBalance,
	}
	n := len(ledger)
	if n == 0 {
		return s
	}

	trades := sortedByClose(ledger)

	nets := make([]float64, n)
	holding := make([]float64, n)
	var winNets, lossNets []float64
	for i, t := range trades {
		nets[i] = t.NetPnL
		holding[i] = t.HoldDuration().Hours()

		if t.IsWin() {
			winNets = append(winNets, t.NetPnL)
			s.GrossProfit += t.NetPnL
		} else {
			lossNets = append(lossNets, t.NetPnL)
			s.GrossLoss += t.NetPnL
		}
		if t.ExitReason == domain.ExitReasonStillOpenAtDataEnd {
			s.StillOpen++
		}
		s.TotalFinancing += t.FinancingCost
		s.TotalFees += t.Fee
		s.TotalNetPnL += t.NetPnL
	}

	sortedNets := make([]float64, n)
	copy(sortedNets, nets)
	sort.Float64s(sortedNets)

	mean := computeMean(nets)

	s.TotalTrades = n
	s.Wins = len(winNets)
	s.Losses = len(lossNets)
	s.WinRate = computeWinRate(s.Wins, n)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(trades)

	s.AvgNetPnL = mean
	s.MedianNetPnL = computePercentile(sortedNets, 0.50)
	s.StddevNetPnL = computeStddev(nets, mean)
	s.MinNetPnL = sortedNets[0]
	s.MaxNetPnL = sortedNets[n-1]
	s.AvgWin = computeMean(winNets)
	s.AvgLoss = computeMean(lossNets)
	s.ProfitFactor = computeProfitFactor(s.GrossProfit, s.GrossLoss)

	s.FinalEquity = initialBalance + s.TotalNetPnL
	if initialBalance > 0 {
		s.ReturnPct = s.TotalNetPnL * 100 / initialBalance
	}
	s.MaxDrawdown = computeMaxDrawdown(initialBalance, nets)
	s.AvgHoldingHours = computeMean(holding)

	s.Monthly = computeMonthly(trades)
	s.Clusters = computeClusters(trades)

	return s
}

func sortedByClose(ledger []*domain.TradeRecord) []*domain.TradeRecord {
	trades := make([]*domain.TradeRecord, len(ledger))
	copy(trades, ledger)
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].ExitTime.Equal(trades[j].ExitTime) {
			return trades[i].ExitTime.Before(trades[j].ExitTime)
		}
		return trades[i].PositionID < trades[j].PositionID
	})
	return trades
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeProfitFactor returns grossProfit / |grossLoss|.
// +Inf when there are no losses but some profit, 0 when there is neither.
func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / math.Abs(grossLoss)
}

// computeMaxDrawdown calculates the worst peak-to-trough fraction of the
// equity curve that starts at initial and moves by each net in order.
// Result is in [0, 1].
func computeMaxDrawdown(initial float64, nets []float64) float64 {
	equity := initial
	peak := initial
	maxDrawdown := 0.0

	for _, v := range nets {
		equity += v
		if equity > peak {
			peak = equity
		}
		if peak <= 0 || equity >= peak {
			continue
		}
		dd := math.Min(1, (peak-equity)/peak)
		if dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of net P&L <= 0.
// Trades must be in close order.
func computeMaxConsecutiveLosses(trades []*domain.TradeRecord) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range trades {
		if !t.IsWin() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

// computeMonthly groups trades by UTC calendar month of exit, months ASC.
func computeMonthly(trades []*domain.TradeRecord) []domain.MonthlyRow {
	byMonth := make(map[string]*domain.MonthlyRow)
	for _, t := range trades {
		month := t.ExitTime.UTC().Format("2006-01")
		row, ok := byMonth[month]
		if !ok {
			row = &domain.MonthlyRow{Month: month}
			byMonth[month] = row
		}
		row.Trades++
		row.NetPnL += t.NetPnL
		if t.IsWin() {
			row.Wins++
		}
	}

	rows := make([]domain.MonthlyRow, 0, len(byMonth))
	for _, row := range byMonth {
		row.WinRate = computeWinRate(row.Wins, row.Trades)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return rows
}

// computeClusters observes the ledger at every distinct entry instant t,
// counts trades open at t (entry <= t < exit) and groups the observations
// by that count. Rows are ordered by Size ASC.
func computeClusters(trades []*domain.TradeRecord) []domain.ClusterRow {
	instants := make([]int64, 0, len(trades))
	seen := make(map[int64]struct{}, len(trades))
	for _, t := range trades {
		ms := t.EntryTime.UnixMilli()
		if _, ok := seen[ms]; ok {
			continue
		}
		seen[ms] = struct{}{}
		instants = append(instants, ms)
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i] < instants[j] })

	type acc struct {
		row   domain.ClusterRow
		total float64
	}
	bySize := make(map[int]*acc)

	for _, at := range instants {
		count := 0
		adverse, net := 0.0, 0.0
		for _, t := range trades {
			if t.EntryTime.UnixMilli() <= at && at < t.ExitTime.UnixMilli() {
				count++
				adverse += t.MaxAdverseExcursion
				net += t.NetPnL
			}
		}
		if count == 0 {
			continue
		}

		a, ok := bySize[count]
		if !ok {
			a = &acc{row: domain.ClusterRow{Size: count, MinNetPnLSum: net, MaxNetPnLSum: net}}
			bySize[count] = a
		}
		a.row.TimesFormed++
		a.total += net
		a.row.MaxAdverseSum = math.Max(a.row.MaxAdverseSum, adverse)
		a.row.MinNetPnLSum = math.Min(a.row.MinNetPnLSum, net)
		a.row.MaxNetPnLSum = math.Max(a.row.MaxNetPnLSum, net)
	}

	rows := make([]domain.ClusterRow, 0, len(bySize))
	for _, a := range bySize {
		a.row.AvgNetPnLSum = a.total / float64(a.row.TimesFormed)
		rows = append(rows, a.row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Size < rows[j].Size })
	return rows
}
