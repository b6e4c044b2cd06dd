// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|position_id|role|entry_time_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runID string,
	positionID int,
	role string,
	entryTimeMs int64,
) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		runID,
		positionID,
		role,
		entryTimeMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
