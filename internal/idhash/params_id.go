package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ComputeParamsID computes a deterministic identifier for a parameter set.
// Keys are sorted so map iteration order does not matter.
// Formula: SHA256(symbol|timeframe|k1=v1|k2=v2|...)
// Returns the first 16 hex characters.
func ComputeParamsID(symbol, timeframe string, params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{symbol, timeframe}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, params[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])[:16]
}
