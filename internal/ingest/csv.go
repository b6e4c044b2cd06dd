// Package ingest reads OHLC candle exports into a candle store.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"backtest-lab/internal/domain"
)

// ErrNoHeader is returned when the first record does not name the OHLC columns.
var ErrNoHeader = errors.New("csv header must name time, open, high, low and close columns")

// maxRowErrors caps the row errors kept in a ParseResult.
const maxRowErrors = 20

// RowError is a record that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ParseResult holds parsed candles in file order.
type ParseResult struct {
	Candles []domain.Candle
	Skipped int        // records that failed to parse
	Errors  []RowError // first skipped records, capped
}

// columns maps field roles to record positions. date is -1 unless the
// export splits date and time into separate columns.
type columns struct {
	date, time, open, high, low, close int
}

var headerAliases = map[string]string{
	"timestamp":    "time",
	"timestamp_ms": "time",
	"datetime":     "time",
	"time":         "time",
	"date":         "date",
	"open":         "open",
	"high":         "high",
	"low":          "low",
	"close":        "close",
}

// Time layouts tried in order for a combined timestamp field.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
}

// ParseCSV reads a header-led candle export. Comma and tab separated files
// are accepted, UTF-8 or UTF-16 with a byte order mark (MT5 exports are
// UTF-16LE, tab separated, with <DATE> and <TIME> columns). Timestamps are
// interpreted as UTC. Unparseable rows are skipped and counted.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	br, err := decode(r)
	if err != nil {
		return nil, err
	}

	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	line, _, _ := strings.Cut(string(first), "\n")

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if strings.Contains(line, "\t") {
		cr.Comma = '\t'
	} else if !strings.Contains(line, ",") && strings.Contains(line, ";") {
		cr.Comma = ';'
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &ParseResult{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	res := &ParseResult{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.Line
			}
			res.skip(line, err)
			continue
		}
		lineNo, _ := cr.FieldPos(0)

		c, err := cols.candle(rec)
		if err != nil {
			res.skip(lineNo, err)
			continue
		}
		res.Candles = append(res.Candles, c)
	}
	return res, nil
}

func (r *ParseResult) skip(line int, err error) {
	r.Skipped++
	if len(r.Errors) < maxRowErrors {
		r.Errors = append(r.Errors, RowError{Line: line, Err: err})
	}
}

// decode strips a UTF-8 BOM or transcodes UTF-16 to UTF-8.
func decode(r io.Reader) (*bufio.Reader, error) {
	br := bufio.NewReader(r)
	b, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return bufio.NewReader(transform.NewReader(br, dec)), nil
	}
	return bufio.NewReader(transform.NewReader(br, unicode.UTF8BOM.NewDecoder())), nil
}

func mapHeader(header []string) (columns, error) {
	cols := columns{date: -1, time: -1, open: -1, high: -1, low: -1, close: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.Trim(name, "<>\"")
		switch headerAliases[name] {
		case "time":
			cols.time = i
		case "date":
			cols.date = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		}
	}
	// A lone date column is a combined timestamp.
	if cols.time < 0 {
		cols.time, cols.date = cols.date, -1
	}
	if cols.time < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0 {
		return cols, fmt.Errorf("%w: got %q", ErrNoHeader, header)
	}
	return cols, nil
}

func (c columns) candle(rec []string) (domain.Candle, error) {
	need := max(c.date, c.time, c.open, c.high, c.low, c.close)
	if len(rec) <= need {
		return domain.Candle{}, fmt.Errorf("want at least %d fields, got %d", need+1, len(rec))
	}

	raw := field(rec, c.time)
	if c.date >= 0 {
		raw = field(rec, c.date) + " " + raw
	}
	ts, err := parseTime(raw)
	if err != nil {
		return domain.Candle{}, err
	}

	var prices [4]float64
	for i, idx := range []int{c.open, c.high, c.low, c.close} {
		v, err := strconv.ParseFloat(field(rec, idx), 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parse price %q: %w", rec[idx], err)
		}
		prices[i] = v
	}

	return domain.Candle{
		Timestamp: ts,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
	}, nil
}

func field(rec []string, i int) string {
	return strings.TrimSpace(strings.Trim(rec[i], `"`))
}

// parseTime accepts unix seconds or milliseconds and the layouts above.
func parseTime(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
