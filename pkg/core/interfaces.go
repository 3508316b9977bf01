// Package core provides the plugin contracts and report types shared by the
// security analyzer and the transaction processor.
// Implement Scanner or Analyzer to plug a custom check into either engine.
package core

import (
	"context"
	"fmt"

	"github.com/scrutinychain/sdk/pkg/chain"
)

// =============================================================================
// Scanner Interface - For contract vulnerability checks
// =============================================================================

// Scanner inspects a contract address and reports textual findings.
// Implementations must be safe for concurrent use: one scanner instance is
// shared by every concurrent Analyze call.
type Scanner interface {
	// Scan returns the findings for the contract at address.
	// A nil or empty slice means nothing was found.
	Scan(ctx context.Context, address chain.Address) ([]string, error)
}

// ScannerFunc adapts an ordinary function to the Scanner interface.
type ScannerFunc func(ctx context.Context, address chain.Address) ([]string, error)

// Scan calls f(ctx, address).
func (f ScannerFunc) Scan(ctx context.Context, address chain.Address) ([]string, error) {
	return f(ctx, address)
}

// =============================================================================
// Analyzer Interface - For transaction signals
// =============================================================================

// Analyzer inspects a transaction and reports named string-valued signals.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	// Analyze returns the signals for tx.
	Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error)
}

// AnalyzerFunc adapts an ordinary function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, tx *chain.Transaction) (map[string]string, error)

// Analyze calls f(ctx, tx).
func (f AnalyzerFunc) Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
	return f(ctx, tx)
}

// =============================================================================
// Naming
// =============================================================================

// Named is implemented by plugins that have a stable name.
// Engines use it for log lines and metric labels only.
type Named interface {
	Name() string
}

// PluginName returns p's name, or "<kind>_<index>" when p is not Named.
func PluginName(p any, kind string, index int) string {
	if n, ok := p.(Named); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%s_%d", kind, index)
}
