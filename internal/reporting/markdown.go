package reporting

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"backtest-lab/internal/domain"
)

// printer groups thousands in money columns.
var printer = message.NewPrinter(language.English)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(printer.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.DataVersion != "" {
		sb.WriteString(printer.Sprintf("Data version: `%s`\n\n", r.DataVersion))
	}

	if run := r.Run; run != nil {
		sb.WriteString("## Run\n\n")
		sb.WriteString("| Field | Value |\n")
		sb.WriteString("|-------|-------|\n")
		sb.WriteString(printer.Sprintf("| Run ID | %s |\n", run.RunID))
		sb.WriteString(printer.Sprintf("| Series | %s %s |\n", run.Symbol, run.Timeframe))
		if run.Label != "" {
			sb.WriteString(printer.Sprintf("| Label | %s |\n", run.Label))
		}
		sb.WriteString(printer.Sprintf("| Status | %s |\n", run.Status))
		sb.WriteString(printer.Sprintf("| Started | %s |\n", run.StartedAt.UTC().Format(time.RFC3339)))
		if run.FinishedAt != nil {
			sb.WriteString(printer.Sprintf("| Finished | %s |\n", run.FinishedAt.UTC().Format(time.RFC3339)))
		}
		sb.WriteString(printer.Sprintf("| Candles | %d |\n", run.Candles))
		sb.WriteString(printer.Sprintf("| Signals | %d |\n", run.Signals))
		if run.Error != "" {
			sb.WriteString(printer.Sprintf("| Error | %s |\n", run.Error))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Performance\n\n")
	if s := r.Summary; s != nil && s.TotalTrades > 0 {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(printer.Sprintf("| Trades | %d |\n", s.TotalTrades))
		sb.WriteString(printer.Sprintf("| Still open at data end | %d |\n", s.StillOpen))
		sb.WriteString(printer.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
		sb.WriteString(printer.Sprintf("| Win rate | %.2f%% |\n", s.WinRate*100))
		sb.WriteString(printer.Sprintf("| Total net P&L | %.2f |\n", s.TotalNetPnL))
		sb.WriteString(printer.Sprintf("| Avg / Median net P&L | %.2f / %.2f |\n", s.AvgNetPnL, s.MedianNetPnL))
		sb.WriteString(printer.Sprintf("| Min / Max net P&L | %.2f / %.2f |\n", s.MinNetPnL, s.MaxNetPnL))
		sb.WriteString(printer.Sprintf("| Avg win / Avg loss | %.2f / %.2f |\n", s.AvgWin, s.AvgLoss))
		sb.WriteString(printer.Sprintf("| Profit factor | %s |\n", ratio(s.ProfitFactor)))
		sb.WriteString(printer.Sprintf("| Financing / Fees | %.2f / %.2f |\n", s.TotalFinancing, s.TotalFees))
		sb.WriteString(printer.Sprintf("| Initial → Final equity | %.2f → %.2f |\n", s.InitialBalance, s.FinalEquity))
		sb.WriteString(printer.Sprintf("| Return | %.2f%% |\n", s.ReturnPct))
		sb.WriteString(printer.Sprintf("| Max drawdown | %.2f%% |\n", s.MaxDrawdown*100))
		sb.WriteString(printer.Sprintf("| Max consecutive losses | %d |\n", s.MaxConsecutiveLosses))
		sb.WriteString(printer.Sprintf("| Avg holding | %.1f h |\n", s.AvgHoldingHours))
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	if len(r.ExitReasons) > 0 {
		sb.WriteString("## Exit Reasons\n\n")
		sb.WriteString("| Reason | Trades | Wins | Net P&L |\n")
		sb.WriteString("|--------|--------|------|---------|\n")
		for _, e := range r.ExitReasons {
			sb.WriteString(printer.Sprintf("| %s | %d | %d | %.2f |\n", e.Reason, e.Trades, e.Wins, e.NetPnL))
		}
		sb.WriteString("\n")
	}

	if len(r.Roles) > 1 {
		sb.WriteString("## Roles\n\n")
		sb.WriteString("| Role | Trades | Wins | Net P&L |\n")
		sb.WriteString("|------|--------|------|---------|\n")
		for _, row := range r.Roles {
			sb.WriteString(printer.Sprintf("| %s | %d | %d | %.2f |\n", row.Role, row.Trades, row.Wins, row.NetPnL))
		}
		sb.WriteString("\n")
	}

	if len(r.Conditions) > 0 {
		writeConditions(&sb, r.Conditions)
	}

	if s := r.Summary; s != nil && len(s.Monthly) > 0 {
		sb.WriteString("## Monthly\n\n")
		sb.WriteString("| Month | Trades | Wins | Win rate | Net P&L |\n")
		sb.WriteString("|-------|--------|------|----------|---------|\n")
		for _, m := range s.Monthly {
			sb.WriteString(printer.Sprintf("| %s | %d | %d | %.2f%% | %.2f |\n",
				m.Month, m.Trades, m.Wins, m.WinRate*100, m.NetPnL))
		}
		sb.WriteString("\n")
	}

	if s := r.Summary; s != nil && len(s.Clusters) > 0 {
		sb.WriteString("## Concurrent Clusters\n\n")
		sb.WriteString("| Open trades | Times formed | Max adverse sum | Avg net sum | Min net sum | Max net sum |\n")
		sb.WriteString("|-------------|--------------|-----------------|-------------|-------------|-------------|\n")
		for _, c := range s.Clusters {
			sb.WriteString(printer.Sprintf("| %d | %d | %.2f | %.2f | %.2f | %.2f |\n",
				c.Size, c.TimesFormed, c.MaxAdverseSum, c.AvgNetPnLSum, c.MinNetPnLSum, c.MaxNetPnLSum))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderSweepMarkdown renders one table row per summary in the given order.
func RenderSweepMarkdown(summaries []*domain.Summary) string {
	var sb strings.Builder

	sb.WriteString("# Parameter Sweep\n\n")
	if len(summaries) == 0 {
		sb.WriteString("No results.\n")
		return sb.String()
	}

	sb.WriteString("| Label | Trades | Win rate | Net P&L | Profit factor | Max DD | Return |\n")
	sb.WriteString("|-------|--------|----------|---------|---------------|--------|--------|\n")
	for _, s := range summaries {
		sb.WriteString(printer.Sprintf("| %s | %d | %.2f%% | %.2f | %s | %.2f%% | %.2f%% |\n",
			s.Label, s.TotalTrades, s.WinRate*100, s.TotalNetPnL, ratio(s.ProfitFactor), s.MaxDrawdown*100, s.ReturnPct))
	}
	return sb.String()
}

func writeConditions(sb *strings.Builder, rows []ConditionRow) {
	sb.WriteString("## Signal Conditions\n\n")
	sb.WriteString("| Outcome | Trades | Avg RSI | Avg RSI SMA | Long RSI | Short RSI | Avg ATR | With supports | With resistances |\n")
	sb.WriteString("|---------|--------|---------|-------------|----------|-----------|---------|---------------|------------------|\n")
	for _, c := range rows {
		sb.WriteString(printer.Sprintf("| %s | %d | %.2f | %.2f | %s | %s | %s | %d | %d |\n",
			c.Outcome, c.Trades, c.AvgRSI, c.AvgRSISMA,
			optional(c.AvgLongRSI, "%.2f"), optional(c.AvgShortRSI, "%.2f"), optional(c.AvgATR, "%.4f"),
			c.WithSupports, c.WithResistances))
	}
	sb.WriteString("\n")

	sb.WriteString("| Outcome | Trend at signal | Share | Exit reason | Share |\n")
	sb.WriteString("|---------|-----------------|-------|-------------|-------|\n")
	for _, c := range rows {
		n := max(len(c.Trends), len(c.ExitReasons))
		for i := 0; i < n; i++ {
			trend, trendShare, reason, reasonShare := "", "", "", ""
			if i < len(c.Trends) {
				trend = c.Trends[i].Key
				trendShare = printer.Sprintf("%.2f%%", c.Trends[i].Share(c.Trades)*100)
			}
			if i < len(c.ExitReasons) {
				reason = c.ExitReasons[i].Key
				reasonShare = printer.Sprintf("%.2f%%", c.ExitReasons[i].Share(c.Trades)*100)
			}
			sb.WriteString(printer.Sprintf("| %s | %s | %s | %s | %s |\n", c.Outcome, trend, trendShare, reason, reasonShare))
		}
	}
	sb.WriteString("\n")
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return printer.Sprintf(format, *v)
}

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "∞"
	}
	return printer.Sprintf("%.2f", v)
}
