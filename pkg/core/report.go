package core

import (
	"maps"
	"slices"
	"strconv"

	"github.com/scrutinychain/sdk/pkg/shared/severity"
)

// Marker strings returned when an engine has nothing registered.
const (
	NoScannersFinding = "No security scanners configured"
	NoAnalyzersStatus = "No analyzers configured"
)

// Metadata keys set on every SecurityReport. Values are always decimal text.
const (
	MetaScanTimestamp = "scan_timestamp"
	MetaScannerCount  = "scanner_count"
)

// Result map keys used by the transaction processor.
const (
	KeyStatus = "status"
	KeyError  = "error"
)

// =============================================================================
// Security Report
// =============================================================================

// SecurityReport is the outcome of one Analyze call.
type SecurityReport struct {
	RiskLevel severity.Level    `json:"risk_level"`
	Findings  []string          `json:"findings"`
	Metadata  map[string]string `json:"metadata"`
}

// Clone returns a deep copy of the report.
func (r *SecurityReport) Clone() *SecurityReport {
	if r == nil {
		return nil
	}
	return &SecurityReport{
		RiskLevel: r.RiskLevel,
		Findings:  slices.Clone(r.Findings),
		Metadata:  maps.Clone(r.Metadata),
	}
}

// Counts tallies the report's findings by derived level.
func (r *SecurityReport) Counts() severity.CountBySeverity {
	return severity.CountFindings(r.Findings)
}

// =============================================================================
// Transaction Results
// =============================================================================

// ResultMap holds the merged signals for one transaction.
type ResultMap map[string]string

// Merge copies every entry of src into m, overwriting existing keys.
func (m ResultMap) Merge(src map[string]string) {
	for k, v := range src {
		m[k] = v
	}
}

// HasErrors reports whether any analyzer failure or processing error was
// recorded in the map.
func (m ResultMap) HasErrors() bool {
	if _, ok := m[KeyError]; ok {
		return true
	}
	for k := range m {
		if isAnalyzerErrorKey(k) {
			return true
		}
	}
	return false
}

// BatchReport maps a transaction hash to that transaction's results.
// Every input transaction has exactly one entry per distinct hash.
type BatchReport map[string]ResultMap

// Failed returns the hashes whose entry carries a processing error, sorted.
func (b BatchReport) Failed() []string {
	var out []string
	for hash, res := range b {
		if _, ok := res[KeyError]; ok {
			out = append(out, hash)
		}
	}
	slices.Sort(out)
	return out
}

// AnalyzerErrorKey returns the result key used to record a failure of the
// analyzer at index.
func AnalyzerErrorKey(index int) string {
	return "analyzer_" + strconv.Itoa(index) + "_error"
}

func isAnalyzerErrorKey(k string) bool {
	const prefix, suffix = "analyzer_", "_error"
	if len(k) <= len(prefix)+len(suffix) || k[:len(prefix)] != prefix || k[len(k)-len(suffix):] != suffix {
		return false
	}
	for _, c := range k[len(prefix) : len(k)-len(suffix)] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
