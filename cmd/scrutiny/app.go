package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/scrutinychain/sdk/pkg/analyzer"
	"github.com/scrutinychain/sdk/pkg/analyzers"
	"github.com/scrutinychain/sdk/pkg/audit"
	"github.com/scrutinychain/sdk/pkg/config"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/health"
	"github.com/scrutinychain/sdk/pkg/metrics"
	"github.com/scrutinychain/sdk/pkg/processor"
	"github.com/scrutinychain/sdk/pkg/provider"
	"github.com/scrutinychain/sdk/pkg/scanners"
	"github.com/scrutinychain/sdk/pkg/store"
)

// chainProvider is what the commands need from a provider: data access plus
// the head block for health checks.
type chainProvider interface {
	provider.DataProvider
	provider.HeadReader
}

// app holds the components one command invocation wires together.
type app struct {
	cfg     *config.Config
	logger  *core.DefaultLogger
	metrics metrics.Collector

	provider chainProvider
	memory   *provider.MemoryProvider // set when no rpc_url is configured

	store *store.Store
	audit *audit.Logger

	closers []func() error
}

// newApp builds the logger and the chain provider. A nil collector disables
// metrics. Store and audit are opened on demand by the commands that need
// them.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer, collector metrics.Collector) (*app, error) {
	level, err := core.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := core.NewDefaultLogger(cfg.Log.Prefix, level)
	logger.SetOutput(logOut)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.OrNop(collector),
	}

	if cfg.Chain.RPCURL == "" {
		logger.Warn("no chain.rpc_url configured; using an empty in-memory provider")
		a.memory = provider.NewMemoryProvider()
		a.provider = a.memory
		return a, nil
	}

	rpcProvider, err := provider.DialRPC(ctx, &provider.RPCConfig{
		URL:            cfg.Chain.RPCURL,
		RequestTimeout: cfg.Chain.RequestTimeout,
		RateLimitRPS:   cfg.Chain.RateLimitRPS,
		RateBurst:      cfg.Chain.RateBurst,
		MaxRetries:     cfg.Chain.MaxRetries,
		BlockLookback:  cfg.Chain.BlockLookback,
	}, provider.WithRPCLogger(logger), provider.WithRPCMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.provider = rpcProvider
	a.closers = append(a.closers, func() error { rpcProvider.Close(); return nil })
	logger.Info("connected to %s", cfg.Chain.RPCURL)
	return a, nil
}

// prometheusCollector returns the collector the server exposes on /metrics,
// or nil when metrics are disabled.
func prometheusCollector(cfg *config.Config) metrics.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewPrometheusCollector(&metrics.PrometheusConfig{
		Namespace:              cfg.Metrics.Namespace,
		RegisterDefaultMetrics: true,
	})
}

// openStore opens the report store when it is enabled and applies the
// retention policy.
func (a *app) openStore(ctx context.Context) error {
	if !a.cfg.Store.Enabled {
		return nil
	}
	s, err := store.Open(ctx, &store.Config{
		Driver:      a.cfg.Store.Driver,
		DSN:         a.cfg.Store.DSN,
		Compression: a.cfg.Store.Compression,
	})
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)

	if a.cfg.Store.Retention > 0 {
		deleted, err := s.Cleanup(ctx, a.cfg.Store.Retention)
		if err != nil {
			a.logger.Warn("report cleanup failed: %v", err)
		} else if deleted > 0 {
			a.logger.Info("removed %d reports older than %s", deleted, a.cfg.Store.Retention)
		}
	}
	return nil
}

// openAudit starts the audit logger when it is enabled.
func (a *app) openAudit() error {
	if !a.cfg.Audit.Enabled {
		return nil
	}
	host, _ := os.Hostname()
	l, err := audit.NewLogger(&audit.LoggerConfig{
		ServiceID: appName + "@" + host,
		LogFile:   a.cfg.Audit.LogFile,
	})
	if err != nil {
		return err
	}
	l.Start()
	l.Info(audit.EventServiceStart, appName+" "+appVersion+" started", nil)
	a.audit = l
	a.closers = append(a.closers, func() error {
		l.Info(audit.EventServiceStop, appName+" stopped", nil)
		return l.Stop()
	})
	return nil
}

func (a *app) buildAnalyzer() (*analyzer.SecurityAnalyzer, error) {
	built, err := scanners.NewRegistry().Build(a.cfg.Engine.Scanners, a.provider)
	if err != nil {
		return nil, err
	}
	sa := analyzer.New(
		analyzer.WithLogger(a.logger),
		analyzer.WithMetrics(a.metrics),
		analyzer.WithPluginTimeout(a.cfg.Engine.PluginTimeout),
	)
	for _, s := range built {
		sa.Register(s)
	}
	return sa, nil
}

func (a *app) buildProcessor() (*processor.TransactionProcessor, error) {
	built, err := analyzers.NewRegistry().Build(a.cfg.Engine.Analyzers, a.provider)
	if err != nil {
		return nil, err
	}
	tp := processor.New(
		processor.WithLogger(a.logger),
		processor.WithMetrics(a.metrics),
		processor.WithPluginTimeout(a.cfg.Engine.PluginTimeout),
		processor.WithBatchConcurrency(a.cfg.Engine.BatchConcurrency),
	)
	for _, an := range built {
		tp.Register(an)
	}
	return tp, nil
}

// healthHandler registers the dependency checks for the wired components.
func (a *app) healthHandler() *health.Handler {
	h := health.NewHandler(health.WithVersion(appVersion))
	h.Register(&health.PingCheck{})
	h.Register(health.NewChainCheck(a.provider, a.cfg.Chain.StallAfter))
	h.Register(&health.MemoryCheck{})
	if a.store != nil {
		h.Register(&health.DatabaseCheck{Store: a.store})
		if a.store.Driver() == store.DriverSQLite {
			h.Register(&health.DiskCheck{Path: filepath.Dir(a.cfg.Store.DSN), MinFreePercent: 5})
		}
	}
	return h
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
