package api

import (
	"math"
	"time"

	"backtest-lab/internal/domain"
)

type runResponse struct {
	RunID       string     `json:"run_id"`
	Symbol      string     `json:"symbol"`
	Timeframe   string     `json:"timeframe"`
	Label       string     `json:"label"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Candles     int        `json:"candles"`
	Signals     int        `json:"signals"`
	Trades      int        `json:"trades"`
	FinalEquity float64    `json:"final_equity"`
	MaxDrawdown float64    `json:"max_drawdown"`
	Error       string     `json:"error,omitempty"`
	Config      string     `json:"config,omitempty"` // YAML, detail view only
}

func newRunResponse(r *domain.Run) runResponse {
	return runResponse{
		RunID:       r.RunID,
		Symbol:      r.Symbol,
		Timeframe:   string(r.Timeframe),
		Label:       r.Label,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Candles:     r.Candles,
		Signals:     r.Signals,
		Trades:      r.Trades,
		FinalEquity: r.FinalEquity,
		MaxDrawdown: r.MaxDrawdown,
		Error:       r.Error,
	}
}

type tradeResponse struct {
	TradeID             string          `json:"trade_id"`
	PositionID          int             `json:"position_id"`
	Role                string          `json:"role"`
	Direction           string          `json:"direction"`
	SignalTime          time.Time       `json:"signal_time"`
	EntryTime           time.Time       `json:"entry_time"`
	EntryPrice          float64         `json:"entry_price"`
	Size                float64         `json:"size"`
	Stop                *float64        `json:"stop"`
	Target              float64         `json:"target"`
	Signal              *signalResponse `json:"signal,omitempty"`
	ExitTime            time.Time       `json:"exit_time"`
	ExitPrice           float64         `json:"exit_price"`
	ExitReason          string          `json:"exit_reason"`
	GrossPnL            float64         `json:"gross_pnl"`
	FinancingCost       float64         `json:"financing_cost"`
	Fee                 float64         `json:"fee"`
	MaxAdverseExcursion float64         `json:"max_adverse_excursion"`
	NetPnL              float64         `json:"net_pnl"`
	EquityAfter         float64         `json:"equity_after"`
	DaysHeld            int             `json:"days_held"`
	DailyReference      float64         `json:"daily_reference"`
}

func newTradeResponse(t *domain.TradeRecord) tradeResponse {
	return tradeResponse{
		TradeID:             t.TradeID,
		PositionID:          t.PositionID,
		Role:                string(t.Role),
		Direction:           string(t.Direction),
		SignalTime:          t.SignalTime,
		EntryTime:           t.EntryTime,
		EntryPrice:          t.EntryPrice,
		Size:                t.Size,
		Stop:                t.Stop,
		Target:              t.Target,
		Signal:              newSignalResponse(t.Signal),
		ExitTime:            t.ExitTime,
		ExitPrice:           t.ExitPrice,
		ExitReason:          t.ExitReason,
		GrossPnL:            t.GrossPnL,
		FinancingCost:       t.FinancingCost,
		Fee:                 t.Fee,
		MaxAdverseExcursion: t.MaxAdverseExcursion,
		NetPnL:              t.NetPnL,
		EquityAfter:         t.EquityAfter,
		DaysHeld:            t.DaysHeld,
		DailyReference:      t.DailyReference,
	}
}

type signalResponse struct {
	RSI         float64   `json:"rsi"`
	RSISMA      float64   `json:"rsi_sma"`
	ATR         *float64  `json:"atr"`
	Trend       string    `json:"trend"`
	Supports    []float64 `json:"supports"`
	Resistances []float64 `json:"resistances"`
}

func newSignalResponse(s *domain.Snapshot) *signalResponse {
	if s == nil {
		return nil
	}
	return &signalResponse{
		RSI:         s.RSI,
		RSISMA:      s.RSISMA,
		ATR:         s.ATR,
		Trend:       string(s.Trend),
		Supports:    s.Supports,
		Resistances: s.Resistances,
	}
}

type summaryResponse struct {
	RunID                string  `json:"run_id"`
	Label                string  `json:"label"`
	TotalTrades          int     `json:"total_trades"`
	StillOpen            int     `json:"still_open"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	WinRate              float64 `json:"win_rate"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	TotalNetPnL          float64 `json:"total_net_pnl"`
	AvgNetPnL            float64 `json:"avg_net_pnl"`
	MedianNetPnL         float64 `json:"median_net_pnl"`
	StddevNetPnL         float64 `json:"stddev_net_pnl"`
	MinNetPnL            float64 `json:"min_net_pnl"`
	MaxNetPnL            float64 `json:"max_net_pnl"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"`
	GrossProfit          float64 `json:"gross_profit"`
	GrossLoss            float64 `json:"gross_loss"`
	// ProfitFactor is null when infinite (profit without losses).
	ProfitFactor    *float64 `json:"profit_factor"`
	TotalFinancing  float64  `json:"total_financing"`
	TotalFees       float64  `json:"total_fees"`
	InitialBalance  float64  `json:"initial_balance"`
	FinalEquity     float64  `json:"final_equity"`
	ReturnPct       float64  `json:"return_pct"`
	MaxDrawdown     float64  `json:"max_drawdown"`
	AvgHoldingHours float64  `json:"avg_holding_hours"`

	Monthly  []monthlyResponse `json:"monthly"`
	Clusters []clusterResponse `json:"clusters"`
}

type monthlyResponse struct {
	Month   string  `json:"month"`
	NetPnL  float64 `json:"net_pnl"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

type clusterResponse struct {
	Size          int     `json:"size"`
	TimesFormed   int     `json:"times_formed"`
	MaxAdverseSum float64 `json:"max_adverse_sum"`
	AvgNetPnLSum  float64 `json:"avg_net_pnl_sum"`
	MinNetPnLSum  float64 `json:"min_net_pnl_sum"`
	MaxNetPnLSum  float64 `json:"max_net_pnl_sum"`
}

func newSummaryResponse(s *domain.Summary) summaryResponse {
	resp := summaryResponse{
		RunID:                s.RunID,
		Label:                s.Label,
		TotalTrades:          s.TotalTrades,
		StillOpen:            s.StillOpen,
		Wins:                 s.Wins,
		Losses:               s.Losses,
		WinRate:              s.WinRate,
		MaxConsecutiveLosses: s.MaxConsecutiveLosses,
		TotalNetPnL:          s.TotalNetPnL,
		AvgNetPnL:            s.AvgNetPnL,
		MedianNetPnL:         s.MedianNetPnL,
		StddevNetPnL:         s.StddevNetPnL,
		MinNetPnL:            s.MinNetPnL,
		MaxNetPnL:            s.MaxNetPnL,
		AvgWin:               s.AvgWin,
		AvgLoss:              s.AvgLoss,
		GrossProfit:          s.GrossProfit,
		GrossLoss:            s.GrossLoss,
		ProfitFactor:         finite(s.ProfitFactor),
		TotalFinancing:       s.TotalFinancing,
		TotalFees:            s.TotalFees,
		InitialBalance:       s.InitialBalance,
		FinalEquity:          s.FinalEquity,
		ReturnPct:            s.ReturnPct,
		MaxDrawdown:          s.MaxDrawdown,
		AvgHoldingHours:      s.AvgHoldingHours,
		Monthly:              make([]monthlyResponse, 0, len(s.Monthly)),
		Clusters:             make([]clusterResponse, 0, len(s.Clusters)),
	}
	for _, m := range s.Monthly {
		resp.Monthly = append(resp.Monthly, monthlyResponse(m))
	}
	for _, c := range s.Clusters {
		resp.Clusters = append(resp.Clusters, clusterResponse(c))
	}
	return resp
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
