package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"backtest-lab/internal/domain"
)

// ComputeLedgerVersion fingerprints a ledger so two reports can be checked
// for identical underlying trades. Trade order does not matter.
// Formula: SHA256 over sorted "trade_id|net_pnl|exit_ms" lines.
// Returns the first 12 hex characters.
func ComputeLedgerVersion(trades []*domain.TradeRecord) string {
	lines := make([]string, 0, len(trades))
	for _, t := range trades {
		lines = append(lines, fmt.Sprintf("%s|%.6f|%d", t.TradeID, t.NetPnL, t.ExitTime.UnixMilli()))
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte("LEDGER\n"))
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
