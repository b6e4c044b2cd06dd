package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"backtest-lab/internal/domain"
)

// Output file names.
const (
	ReportFile       = "report.md"
	LedgerFile       = "ledger.csv"
	MonthlyFile      = "monthly.csv"
	SummaryFile      = "summary.csv"
	SweepReportFile  = "sweep.md"
	SweepSummaryFile = "sweep_summary.csv"
)

// WriteRunFiles writes the markdown report, ledger, monthly and summary
// CSVs of one run into dir, creating it if needed. Returns the written paths.
func WriteRunFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var ledger, monthly, summary bytes.Buffer
	if err := WriteLedgerCSV(&ledger, r.Trades); err != nil {
		return nil, err
	}
	var rows []domain.MonthlyRow
	var summaries []*domain.Summary
	if r.Summary != nil {
		rows = r.Summary.Monthly
		summaries = []*domain.Summary{r.Summary}
	}
	if err := WriteMonthlyCSV(&monthly, rows); err != nil {
		return nil, err
	}
	if err := WriteSummaryCSV(&summary, summaries); err != nil {
		return nil, err
	}

	return writeFiles(dir, map[string][]byte{
		ReportFile:  []byte(RenderMarkdown(r)),
		LedgerFile:  ledger.Bytes(),
		MonthlyFile: monthly.Bytes(),
		SummaryFile: summary.Bytes(),
	}, ReportFile, LedgerFile, MonthlyFile, SummaryFile)
}

// WriteSweepFiles writes the sweep table and summary CSV into dir.
func WriteSweepFiles(dir string, summaries []*domain.Summary) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var summary bytes.Buffer
	if err := WriteSummaryCSV(&summary, summaries); err != nil {
		return nil, err
	}
	return writeFiles(dir, map[string][]byte{
		SweepReportFile:  []byte(RenderSweepMarkdown(summaries)),
		SweepSummaryFile: summary.Bytes(),
	}, SweepReportFile, SweepSummaryFile)
}

func writeFiles(dir string, contents map[string][]byte, order ...string) ([]string, error) {
	paths := make([]string, 0, len(order))
	for _, name := range order {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, contents[name], 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
