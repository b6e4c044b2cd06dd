package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage/memory"
)

var t0 = time.Date(2025, 4, 1, 4, 0, 0, 0, time.UTC)

func TestParseCSV_CommaWithHeader(t *testing.T) {
	in := "timestamp,open,high,low,close\n" +
		"2025-04-01T04:00:00Z,32.10,32.20,32.00,32.15\n" +
		"2025-04-01 04:05:00,32.15,32.30,32.10,32.25\n"

	res, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Candles, 2)
	assert.Equal(t, t0, res.Candles[0].Timestamp)
	assert.Equal(t, t0.Add(5*time.Minute), res.Candles[1].Timestamp)
	assert.Equal(t, 32.25, res.Candles[1].Close)
	assert.Zero(t, res.Skipped)
}

func TestParseCSV_ColumnOrderAndUnixTimes(t *testing.T) {
	in := "close,low,high,open,timestamp_ms,volume\n" +
		"32.15,32.00,32.20,32.10,1743480000000,10\n" +
		"32.25,32.10,32.30,32.15,1743480300,12\n"

	res, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Candles, 2)
	assert.Equal(t, t0, res.Candles[0].Timestamp)
	assert.Equal(t, t0.Add(5*time.Minute), res.Candles[1].Timestamp)
	assert.Equal(t, 32.10, res.Candles[0].Open)
}

func TestParseCSV_MT5UTF16(t *testing.T) {
	text := "<DATE>\t<TIME>\t<OPEN>\t<HIGH>\t<LOW>\t<CLOSE>\t<TICKVOL>\n" +
		"2025.04.01\t04:00:00\t32.10\t32.20\t32.00\t32.15\t120\n" +
		"2025.04.01\t04:05\t32.15\t32.30\t32.10\t32.25\t98\n"
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(text)
	require.NoError(t, err)

	res, err := ParseCSV(strings.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, res.Candles, 2)
	assert.Equal(t, t0, res.Candles[0].Timestamp)
	assert.Equal(t, t0.Add(5*time.Minute), res.Candles[1].Timestamp)
	assert.Equal(t, 32.30, res.Candles[1].High)
}

func TestParseCSV_UTF8BOMAndBadRows(t *testing.T) {
	in := "\ufeffDate,Open,High,Low,Close\n" +
		"2025-04-01 04:00:00,32.10,32.20,32.00,32.15\n" +
		"not-a-date,1,1,1,1\n" +
		"2025-04-01 04:10:00,abc,1,1,1\n" +
		"2025-04-01 04:15:00,1\n"

	res, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, res.Candles, 1)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, 3, res.Errors[0].Line)
}

func TestParseCSV_MissingColumns(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("timestamp,open,close\n1,2,3\n"))
	assert.ErrorIs(t, err, ErrNoHeader)

	res, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, res.Candles)
}

func TestImporter_NormalizesAndResamples(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCandleStore()
	key := domain.SeriesKey{Symbol: "XAGUSD", Timeframe: domain.Timeframe5Min}

	in := "timestamp,open,high,low,close\n" +
		"2025-04-01T04:05:00Z,32.15,32.30,32.10,32.25\n" +
		"2025-04-01T04:00:00Z,32.10,32.20,32.00,32.15\n" +
		"2025-04-01T04:10:00Z,32.25,32.20,32.40,32.30\n" + // low above high
		"2025-04-01T04:05:00Z,32.15,32.35,32.10,32.30\n" + // duplicate, last wins
		"2025-04-01T04:15:00Z,32.30,32.50,32.20,32.45\n"

	imp := NewImporter(store, nil)
	imp.batchSize = 2
	res, err := imp.Import(ctx, key, strings.NewReader(in), domain.Timeframe15Min, domain.Timeframe5Min)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Parsed)
	assert.Equal(t, 3, res.Stored)
	assert.Equal(t, 1, res.Dropped["invalid"])
	assert.Equal(t, 1, res.Dropped["duplicate"])
	assert.Equal(t, map[domain.Timeframe]int{domain.Timeframe15Min: 2}, res.Derived)

	stored, err := store.GetRange(ctx, key, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, 32.30, stored[1].Close)

	coarse, err := store.GetRange(ctx, domain.SeriesKey{Symbol: "XAGUSD", Timeframe: domain.Timeframe15Min}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, coarse, 2)
	assert.Equal(t, 32.35, coarse[0].High)
	assert.Equal(t, 32.30, coarse[0].Close)
}

func TestImporter_RejectsUnknownTimeframe(t *testing.T) {
	imp := NewImporter(memory.NewCandleStore(), nil)
	_, err := imp.Import(context.Background(), domain.SeriesKey{Symbol: "XAGUSD", Timeframe: "7min"}, strings.NewReader(""))
	assert.Error(t, err)
}
