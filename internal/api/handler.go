package api

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/storage"
)

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns handles GET /runs?limit=N.
func (s *Server) ListRuns(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	limit := DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxListLimit {
			s.abort(c, http.StatusBadRequest, errors.New("limit must be an integer in [1, 1000]"))
			return
		}
		limit = n
	}

	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}

	resp := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		resp = append(resp, newRunResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

// GetRun handles GET /runs/:id.
func (s *Server) GetRun(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	run, err := s.runs.GetByID(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}

	resp := newRunResponse(run)
	resp.Config = string(run.Config)
	c.JSON(http.StatusOK, resp)
}

// GetTrades handles GET /runs/:id/trades.
func (s *Server) GetTrades(c *gin.Context) {
	trades, ok := s.ledger(c)
	if !ok {
		return
	}

	resp := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		resp = append(resp, newTradeResponse(t))
	}
	c.JSON(http.StatusOK, resp)
}

// GetLedgerCSV handles GET /runs/:id/ledger.csv.
func (s *Server) GetLedgerCSV(c *gin.Context) {
	trades, ok := s.ledger(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", attachment(c.Param("id")+"_ledger.csv"))
	c.Status(http.StatusOK)
	if err := reporting.WriteLedgerCSV(c.Writer, trades); err != nil {
		s.logger.Error("write ledger csv", zap.String("run_id", c.Param("id")), zap.Error(err))
	}
}

// GetSummary handles GET /runs/:id/summary.
func (s *Server) GetSummary(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	summary, err := s.summaries.GetByRunID(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSummaryResponse(summary))
}

// GetReport handles GET /runs/:id/report and renders markdown.
func (s *Server) GetReport(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	report, err := s.reports.Generate(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(reporting.RenderMarkdown(report)))
}

// ledger loads the trades of an existing run. A run without trades yields
// an empty ledger; an unknown run is a 404.
func (s *Server) ledger(c *gin.Context) ([]*domain.TradeRecord, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	runID := c.Param("id")
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		s.storeError(c, err)
		return nil, false
	}
	trades, err := s.trades.GetByRunID(ctx, runID)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return trades, true
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.abort(c, http.StatusNotFound, err)
		return
	}
	s.abort(c, http.StatusInternalServerError, err)
}

// abort logs server errors and writes a JSON error body. Internal error
// text is not exposed to clients.
func (s *Server) abort(c *gin.Context, status int, err error) {
	requestID := c.GetString(requestIDContextKey)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("api error",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": requestID,
	})
}

// attachment builds a Content-Disposition value with filename quoted or
// RFC 2231 encoded as needed.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
