// Package fingerprint generates stable identifiers for security findings so
// repeated analyses of the same contract can be compared.
//
// IMPORTANT: fingerprints are persisted with every stored report. Any change
// to the normalization rules changes stored values and breaks comparisons
// against older records.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Finding fingerprints one finding reported for a contract. Case and
// whitespace differences in either argument do not change the result.
func Finding(address, finding string) string {
	return Hash("finding:" + normalizeAddress(address) + ":" + normalize(finding))
}

// Report fingerprints the set of findings reported for a contract.
// The result ignores finding order and duplicates, so two analyses that found
// the same issues share a fingerprint even when scanners ran in a different
// order.
func Report(address string, findings []string) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, Finding(address, f))
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)

	return Hash("report:" + normalizeAddress(address) + ":" + strings.Join(parts, ","))
}

// Hash computes SHA256 hash of the input string.
// Returns 64 hex characters.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// normalize trims, lowercases and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// normalizeAddress cleans up an address for fingerprinting.
// - Converts to lowercase (checksummed and plain forms are the same address)
// - Ensures 0x prefix for 40-digit addresses
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.ToLower(addr)

	if len(addr) == 40 && !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}

	return addr
}
