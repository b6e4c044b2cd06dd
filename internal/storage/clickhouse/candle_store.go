package clickhouse

import (
	"context"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore on a ReplacingMergeTree table.
// Reads use FINAL so a re-ingested bar replaces the older row immediately.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// UpsertBulk writes candles for one series. Within the batch the last candle per timestamp wins.
func (s *CandleStore) UpsertBulk(ctx context.Context, key domain.SeriesKey, candles []domain.Candle) error {
	if key.Symbol == "" || key.Timeframe == "" {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	latest := make(map[int64]int, len(candles))
	for i, c := range candles {
		if c.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
		latest[c.Timestamp.UnixMilli()] = i
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (symbol, timeframe, ts, open, high, low, close)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i, c := range candles {
		if latest[c.Timestamp.UnixMilli()] != i {
			continue
		}
		err = batch.Append(
			key.Symbol, string(key.Timeframe), c.Timestamp.UTC(),
			c.Open, c.High, c.Low, c.Close,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange retrieves candles within [start, end], ordered by timestamp ASC. A zero end is unbounded.
func (s *CandleStore) GetRange(ctx context.Context, key domain.SeriesKey, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT ts, open, high, low, close
		FROM candles FINAL
		WHERE symbol = ? AND timeframe = ? AND ts >= ?`
	args := []any{key.Symbol, string(key.Timeframe), start.UTC()}
	if !end.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, end.UTC())
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candle range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// ListSeries returns all stored series, ordered by symbol, timeframe.
func (s *CandleStore) ListSeries(ctx context.Context) ([]domain.SeriesKey, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT symbol, timeframe
		FROM candles
		ORDER BY symbol ASC, timeframe ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var keys []domain.SeriesKey
	for rows.Next() {
		var symbol, timeframe string
		if err := rows.Scan(&symbol, &timeframe); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		keys = append(keys, domain.SeriesKey{Symbol: symbol, Timeframe: domain.Timeframe(timeframe)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}
	return keys, nil
}

func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return candles, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
