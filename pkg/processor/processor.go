// Package processor implements the transaction processor.
//
// A TransactionProcessor runs its registered analyzers against a transaction
// and merges their result maps. Unlike the security analyzer it never fails
// because of an analyzer: each failure is recorded in the result under
// "analyzer_<index>_error" and the remaining analyzers still run.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/metrics"
	"github.com/scrutinychain/sdk/pkg/retry"
)

const (
	opProcess = "processor.Process"

	analysisFailedPrefix   = "Analysis failed: "
	processingFailedPrefix = "Processing failed: "

	statusPartial = "partial"
)

// TransactionProcessor merges analyzer output per transaction.
// It is safe for concurrent use once all analyzers are registered.
type TransactionProcessor struct {
	mu        sync.RWMutex
	analyzers []core.Analyzer

	logger           core.Logger
	metrics          metrics.Collector
	pluginTimeout    time.Duration
	batchConcurrency int
}

// Option configures a TransactionProcessor.
type Option func(*TransactionProcessor)

// WithLogger sets the logger. Default is a NopLogger.
func WithLogger(l core.Logger) Option {
	return func(p *TransactionProcessor) {
		p.logger = core.LoggerOrNop(l)
	}
}

// WithMetrics sets the metrics collector. Default is a NopCollector.
func WithMetrics(c metrics.Collector) Option {
	return func(p *TransactionProcessor) {
		p.metrics = metrics.OrNop(c)
	}
}

// WithPluginTimeout bounds every individual Analyze call. An analyzer that
// has not returned when d elapses is recorded as failed. Zero disables the
// bound.
func WithPluginTimeout(d time.Duration) Option {
	return func(p *TransactionProcessor) {
		p.pluginTimeout = d
	}
}

// WithBatchConcurrency sets how many transactions ProcessBatch handles at
// once. Values below 1 mean 1.
func WithBatchConcurrency(n int) Option {
	return func(p *TransactionProcessor) {
		if n < 1 {
			n = 1
		}
		p.batchConcurrency = n
	}
}

// New creates a TransactionProcessor with no analyzers.
func New(opts ...Option) *TransactionProcessor {
	p := &TransactionProcessor{
		logger:           &core.NopLogger{},
		metrics:          &metrics.NopCollector{},
		batchConcurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger.Info("transaction processor created (batch concurrency %d, plugin timeout %v)",
		p.batchConcurrency, p.pluginTimeout)
	return p
}

// Register appends an analyzer. Registering the same analyzer twice runs it
// twice.
func (p *TransactionProcessor) Register(a core.Analyzer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyzers = append(p.analyzers, a)
	p.logger.Debug("registered analyzer %s", core.PluginName(a, "analyzer", len(p.analyzers)-1))
}

// Analyzers returns a copy of the registered analyzers in registration order.
func (p *TransactionProcessor) Analyzers() []core.Analyzer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.Analyzer, len(p.analyzers))
	copy(out, p.analyzers)
	return out
}

// Len returns the number of registered analyzers.
func (p *TransactionProcessor) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.analyzers)
}

// Process runs every registered analyzer against tx and merges the results.
// When two analyzers emit the same key the later one wins.
//
// With no analyzers registered Process returns {"status": "No analyzers
// configured"}. A failing analyzer is recorded as
// "analyzer_<index>_error" -> "Analysis failed: <message>". If ctx is done,
// analyzers that have not started are recorded as failed with the context
// error. The only error Process returns is for a nil transaction.
func (p *TransactionProcessor) Process(ctx context.Context, tx *chain.Transaction) (core.ResultMap, error) {
	if tx == nil {
		p.metrics.CounterInc(metrics.TransactionsProcessedTotal.Name, "status", metrics.StatusFailure)
		return nil, errors.E(errors.KindValidation, opProcess, "transaction is nil")
	}

	analyzers := p.Analyzers()
	if len(analyzers) == 0 {
		p.logger.Warn("process %s: no analyzers configured", tx.Hash)
		p.metrics.CounterInc(metrics.TransactionsProcessedTotal.Name, "status", metrics.StatusEmpty)
		return core.ResultMap{core.KeyStatus: core.NoAnalyzersStatus}, nil
	}

	p.logger.Debug("process %s: running %d analyzers", tx.Hash, len(analyzers))

	result := make(core.ResultMap)
	failures := 0
	for i, a := range analyzers {
		name := core.PluginName(a, "analyzer", i)

		var (
			out map[string]string
			err error
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.FromContext(opProcess, ctxErr)
		} else {
			out, err = p.runAnalyzer(ctx, a, tx)
		}

		if err != nil {
			failures++
			p.logger.Error("process %s: analyzer %d (%s) failed: %v", tx.Hash, i, name, err)
			p.metrics.CounterInc(metrics.TransactionAnalyzerFailuresTotal.Name, "analyzer", name)
			result[core.AnalyzerErrorKey(i)] = analysisFailedPrefix + err.Error()
			continue
		}

		p.logger.Debug("process %s: analyzer %d (%s) returned %d entries", tx.Hash, i, name, len(out))
		result.Merge(out)
	}

	status := metrics.StatusSuccess
	if failures > 0 {
		status = statusPartial
	}
	p.metrics.CounterInc(metrics.TransactionsProcessedTotal.Name, "status", status)

	return result, nil
}

// ProcessBatch processes every transaction and returns the results keyed by
// transaction hash. It never fails as a whole: if Process fails for a
// transaction, its entry becomes {"error": "Processing failed: <message>"}.
// A nil transaction is keyed by the empty hash. When hashes repeat, the
// entry of the last such transaction in input order wins.
func (p *TransactionProcessor) ProcessBatch(ctx context.Context, txs []*chain.Transaction) (core.BatchReport, error) {
	p.metrics.HistogramObserve(metrics.TransactionBatchSize.Name, float64(len(txs)))
	p.logger.Info("processing batch of %d transactions", len(txs))

	results := make([]core.ResultMap, len(txs))

	if p.batchConcurrency <= 1 {
		for i, tx := range txs {
			results[i] = p.processEntry(ctx, tx)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(p.batchConcurrency)
		for i, tx := range txs {
			g.Go(func() error {
				results[i] = p.processEntry(ctx, tx)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := make(core.BatchReport, len(txs))
	for i, tx := range txs {
		report[batchKey(tx)] = results[i]
	}

	if failed := report.Failed(); len(failed) > 0 {
		p.logger.Warn("batch finished with %d failed transactions", len(failed))
	}
	return report, nil
}

func (p *TransactionProcessor) processEntry(ctx context.Context, tx *chain.Transaction) core.ResultMap {
	res, err := p.Process(ctx, tx)
	if err != nil {
		p.logger.Error("process %s: %v", batchKey(tx), err)
		return core.ResultMap{core.KeyError: processingFailedPrefix + err.Error()}
	}
	return res
}

// runAnalyzer calls a under the plugin timeout. A panic inside the analyzer
// is returned as an error.
func (p *TransactionProcessor) runAnalyzer(ctx context.Context, a core.Analyzer, tx *chain.Transaction) (map[string]string, error) {
	return retry.WithTimeout(ctx, p.pluginTimeout, func(ctx context.Context) (out map[string]string, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, &errors.Error{Kind: errors.KindInternal, Message: fmt.Sprintf("analyzer panicked: %v", r)}
			}
		}()
		return a.Analyze(ctx, tx)
	})
}

func batchKey(tx *chain.Transaction) string {
	if tx == nil {
		return ""
	}
	return tx.Hash.String()
}
