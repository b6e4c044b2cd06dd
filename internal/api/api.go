// Package api serves stored backtest runs over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtest-lab/internal/observability"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/storage"
)

const (
	// DefaultTimeout bounds store calls made by one request.
	DefaultTimeout = 30 * time.Second

	// DefaultListLimit applies to GET /runs without a limit parameter.
	DefaultListLimit = 50

	// MaxListLimit caps the limit parameter of GET /runs.
	MaxListLimit = 1000
)

const (
	RequestIDHeaderKey  = "X-Request-ID"
	requestIDContextKey = "request_id"
)

// Options configures a Server.
type Options struct {
	RunStore     storage.RunStore
	TradeStore   storage.TradeRecordStore
	SummaryStore storage.SummaryStore
	Metrics      *observability.Metrics // nil disables /metrics and request metrics
	Logger       *zap.Logger
}

// Server exposes runs, ledgers and summaries read-only.
type Server struct {
	runs      storage.RunStore
	trades    storage.TradeRecordStore
	summaries storage.SummaryStore
	reports   *reporting.Generator
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewServer creates a results API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		runs:      opts.RunStore,
		trades:    opts.TradeStore,
		summaries: opts.SummaryStore,
		reports:   reporting.NewGenerator(opts.RunStore, opts.TradeStore, opts.SummaryStore),
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Routes builds the gin engine with all routes and middleware.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(s.loggerMiddleware())
	router.Use(s.metricsMiddleware())
	router.Use(gin.Recovery())

	router.GET("/healthz", s.Health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	runs := router.Group("/runs")
	runs.GET("", s.ListRuns)
	runs.GET("/:id", s.GetRun)
	runs.GET("/:id/trades", s.GetTrades)
	runs.GET("/:id/ledger.csv", s.GetLedgerCSV)
	runs.GET("/:id/summary", s.GetSummary)
	runs.GET("/:id/report", s.GetReport)

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
