// Package analyzer implements the contract security analyzer.
//
// A SecurityAnalyzer runs its registered scanners one after another, in
// registration order, and combines their findings into a single report. The
// first scanner error aborts the analysis and no partial report is returned.
//
// Example usage:
//
//	a := analyzer.New(analyzer.WithLogger(logger))
//	a.Register(scanners.Reentrancy(source))
//	a.Register(scanners.DelegateCall(source))
//
//	report, err := a.Analyze(ctx, address)
//	if err != nil {
//	    idx, _ := errors.PluginIndex(err)
//	    ...
//	}
package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/metrics"
	"github.com/scrutinychain/sdk/pkg/retry"
	"github.com/scrutinychain/sdk/pkg/shared/severity"
)

const opAnalyze = "analyzer.Analyze"

// SecurityAnalyzer aggregates scanner findings into a SecurityReport.
// It is safe for concurrent use once all scanners are registered.
type SecurityAnalyzer struct {
	mu       sync.RWMutex
	scanners []core.Scanner

	logger        core.Logger
	metrics       metrics.Collector
	pluginTimeout time.Duration
	now           func() time.Time
}

// Option configures a SecurityAnalyzer.
type Option func(*SecurityAnalyzer)

// WithLogger sets the logger. Default is a NopLogger.
func WithLogger(l core.Logger) Option {
	return func(a *SecurityAnalyzer) {
		a.logger = core.LoggerOrNop(l)
	}
}

// WithMetrics sets the metrics collector. Default is a NopCollector.
func WithMetrics(c metrics.Collector) Option {
	return func(a *SecurityAnalyzer) {
		a.metrics = metrics.OrNop(c)
	}
}

// WithPluginTimeout bounds every individual Scan call. A scanner that has
// not returned when d elapses fails the analysis with a timeout error.
// Zero disables the bound.
func WithPluginTimeout(d time.Duration) Option {
	return func(a *SecurityAnalyzer) {
		a.pluginTimeout = d
	}
}

// WithClock sets the clock used for the scan_timestamp metadata.
func WithClock(now func() time.Time) Option {
	return func(a *SecurityAnalyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates a SecurityAnalyzer with no scanners.
func New(opts ...Option) *SecurityAnalyzer {
	a := &SecurityAnalyzer{
		logger:  &core.NopLogger{},
		metrics: &metrics.NopCollector{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger.Info("security analyzer created (plugin timeout %v)", a.pluginTimeout)
	return a
}

// Register appends s to the scanner list. Registering the same scanner twice
// runs it twice. Registration while Analyze calls are in flight is allowed
// but those calls keep the list they started with.
func (a *SecurityAnalyzer) Register(s core.Scanner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanners = append(a.scanners, s)
	a.logger.Debug("registered scanner %s", core.PluginName(s, "scanner", len(a.scanners)-1))
}

// Scanners returns a copy of the registered scanners in registration order.
func (a *SecurityAnalyzer) Scanners() []core.Scanner {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]core.Scanner, len(a.scanners))
	copy(out, a.scanners)
	return out
}

// Len returns the number of registered scanners.
func (a *SecurityAnalyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.scanners)
}

// Analyze runs every registered scanner against address and returns the
// combined report.
//
// With no scanners registered Analyze succeeds with RiskLevel None and the
// single finding "No security scanners configured". If any scanner fails,
// Analyze returns a KindAnalysis error carrying the scanner's index (see
// errors.PluginIndex) and discards the findings gathered so far. A scanner
// that exceeds the plugin timeout counts as a failed scanner; cancellation or
// expiry of ctx itself is returned as a context error without a plugin index.
func (a *SecurityAnalyzer) Analyze(ctx context.Context, address chain.Address) (*core.SecurityReport, error) {
	scanners := a.Scanners()
	timer := metrics.NewTimer(a.metrics, metrics.SecurityAnalysisDuration.Name)
	defer timer.ObserveDuration()

	if len(scanners) == 0 {
		a.logger.Warn("analyze %s: no security scanners configured", address)
		a.metrics.CounterInc(metrics.SecurityAnalysesTotal.Name, "status", metrics.StatusEmpty)
		return &core.SecurityReport{
			RiskLevel: severity.None,
			Findings:  []string{core.NoScannersFinding},
			Metadata:  a.metadata(0),
		}, nil
	}

	a.logger.Info("analyze %s: running %d scanners", address, len(scanners))

	findings := make([]string, 0, len(scanners))
	for i, s := range scanners {
		name := core.PluginName(s, "scanner", i)

		if err := ctx.Err(); err != nil {
			a.metrics.CounterInc(metrics.SecurityAnalysesTotal.Name, "status", metrics.StatusFailure)
			return nil, errors.FromContext(opAnalyze, err)
		}

		out, err := a.runScanner(ctx, s, address)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				a.logger.Warn("analyze %s: cancelled during scanner %d (%s): %v", address, i, name, ctxErr)
				a.metrics.CounterInc(metrics.SecurityAnalysesTotal.Name, "status", metrics.StatusFailure)
				return nil, errors.FromContext(opAnalyze, ctxErr)
			}
			a.logger.Error("analyze %s: scanner %d (%s) failed: %v", address, i, name, err)
			a.metrics.CounterInc(metrics.SecurityScannerFailuresTotal.Name, "scanner", name)
			a.metrics.CounterInc(metrics.SecurityAnalysesTotal.Name, "status", metrics.StatusFailure)
			return nil, errors.Analysis(opAnalyze, i, name, err)
		}

		a.logger.Debug("analyze %s: scanner %d (%s) returned %d findings", address, i, name, len(out))
		findings = append(findings, out...)
	}

	report := &core.SecurityReport{
		RiskLevel: severity.FromFindings(findings),
		Findings:  findings,
		Metadata:  a.metadata(len(scanners)),
	}

	for _, f := range findings {
		a.metrics.CounterInc(metrics.SecurityFindingsTotal.Name, "risk", severity.FromFinding(f).String())
	}
	a.metrics.CounterInc(metrics.SecurityAnalysesTotal.Name, "status", metrics.StatusSuccess)
	a.logger.Info("analyze %s: risk %s, %d findings", address, report.RiskLevel, len(findings))

	return report, nil
}

// runScanner calls s under the plugin timeout. A panic inside the scanner is
// returned as an error.
func (a *SecurityAnalyzer) runScanner(ctx context.Context, s core.Scanner, address chain.Address) ([]string, error) {
	return retry.WithTimeout(ctx, a.pluginTimeout, func(ctx context.Context) (out []string, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, &errors.Error{Kind: errors.KindInternal, Message: fmt.Sprintf("scanner panicked: %v", r)}
			}
		}()
		return s.Scan(ctx, address)
	})
}

func (a *SecurityAnalyzer) metadata(scannerCount int) map[string]string {
	return map[string]string{
		core.MetaScanTimestamp: strconv.FormatInt(a.now().Unix(), 10),
		core.MetaScannerCount:  strconv.Itoa(scannerCount),
	}
}
