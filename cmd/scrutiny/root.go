package main

import (
	"github.com/spf13/cobra"

	"github.com/scrutinychain/sdk/pkg/config"
)

type rootOptions struct {
	ConfigPath string
	LogLevel   string
	RPCURL     string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Pluggable security analysis for smart contracts and transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       appVersion,
	}
	rootCmd.SetVersionTemplate(appName + " version {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "Path to scrutiny.yaml (optional)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	flags.StringVar(&opts.RPCURL, "rpc-url", "", "Override chain.rpc_url")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newProcessCmd(opts),
		newScannersCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file and environment, then applies the
// command-line overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.LogLevel == "" && o.RPCURL == "" {
		return cfg, nil
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.RPCURL != "" {
		cfg.Chain.RPCURL = o.RPCURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
