package reporting

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// Decimal places in CSV output.
const (
	pricePlaces = 5
	moneyPlaces = 2
	ratioPlaces = 6
)

// LedgerHeader is the stable column order of the trade ledger CSV.
var LedgerHeader = []string{
	"direction", "entry_time", "entry_price", "exit_time", "exit_price", "size",
	"gross_pnl", "financing_cost", "fee", "max_adverse_excursion", "net_pnl",
	"equity_after", "exit_reason", "role",
}

// WriteLedgerCSV writes one row per trade in the given order.
func WriteLedgerCSV(w io.Writer, trades []*domain.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return err
	}

	for _, t := range trades {
		row := []string{
			string(t.Direction),
			formatTime(t.EntryTime),
			fixed(t.EntryPrice, pricePlaces),
			formatTime(t.ExitTime),
			fixed(t.ExitPrice, pricePlaces),
			decimal.NewFromFloat(t.Size).String(),
			fixed(t.GrossPnL, moneyPlaces),
			fixed(t.FinancingCost, moneyPlaces),
			fixed(t.Fee, moneyPlaces),
			fixed(t.MaxAdverseExcursion, moneyPlaces),
			fixed(t.NetPnL, moneyPlaces),
			fixed(t.EquityAfter, moneyPlaces),
			t.ExitReason,
			string(t.Role),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteMonthlyCSV writes the monthly breakdown of a summary.
func WriteMonthlyCSV(w io.Writer, rows []domain.MonthlyRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", "net_pnl", "trades", "wins", "win_rate"}); err != nil {
		return err
	}

	for _, m := range rows {
		row := []string{
			m.Month,
			fixed(m.NetPnL, moneyPlaces),
			strconv.Itoa(m.Trades),
			strconv.Itoa(m.Wins),
			fixed(m.WinRate, ratioPlaces),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes one row per summary, e.g. one per sweep combination.
func WriteSummaryCSV(w io.Writer, summaries []*domain.Summary) error {
	cw := csv.NewWriter(w)
	header := []string{
		"run_id", "label", "total_trades", "wins", "losses", "win_rate",
		"total_net_pnl", "avg_net_pnl", "profit_factor", "max_drawdown",
		"max_consecutive_losses", "final_equity", "return_pct",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range summaries {
		row := []string{
			s.RunID,
			s.Label,
			strconv.Itoa(s.TotalTrades),
			strconv.Itoa(s.Wins),
			strconv.Itoa(s.Losses),
			fixed(s.WinRate, ratioPlaces),
			fixed(s.TotalNetPnL, moneyPlaces),
			fixed(s.AvgNetPnL, moneyPlaces),
			fixed(s.ProfitFactor, ratioPlaces),
			fixed(s.MaxDrawdown, ratioPlaces),
			strconv.Itoa(s.MaxConsecutiveLosses),
			fixed(s.FinalEquity, moneyPlaces),
			fixed(s.ReturnPct, moneyPlaces),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// fixed renders v with a fixed number of decimal places, half away from zero.
// Infinities render as "inf" / "-inf".
func fixed(v float64, places int32) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
