package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrutinychain/sdk/pkg/api"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), prometheusCollector(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override server.listen")
	return cmd
}

// serve opens the store and audit log, then runs the API until ctx ends.
func (a *app) serve(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openAudit(); err != nil {
		return err
	}

	sa, err := a.buildAnalyzer()
	if err != nil {
		return err
	}
	tp, err := a.buildProcessor()
	if err != nil {
		return err
	}

	h := a.healthHandler()
	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
		api.WithHealth(h),
		api.WithMaxBatchSize(a.cfg.Server.MaxBatchSize),
		api.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout),
	}
	if a.store != nil {
		opts = append(opts, api.WithStore(a.store))
	}
	if a.audit != nil {
		opts = append(opts, api.WithAudit(a.audit))
	}

	server := api.NewServer(sa, tp, a.provider, opts...)
	h.SetReady(true)
	a.logger.Info("%s %s: %d scanners, %d analyzers", appName, appVersion, sa.Len(), tp.Len())
	return server.ListenAndServe(ctx, a.cfg.Server.Listen)
}
