package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/errors"
)

type analyzeOptions struct {
	Bytecode string
	Save     bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <address>",
		Short: "Run the vulnerability scanners against a contract",
		Long: `Run the configured vulnerability scanners against the contract at <address>
and print the security report as JSON.

Without chain.rpc_url the contract code must be given with --bytecode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := chain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.Bytecode != "" {
				if a.memory == nil {
					return errors.E(errors.KindValidation, "analyze", "--bytecode cannot be combined with chain.rpc_url")
				}
				code, err := chain.HexToBytes(opts.Bytecode)
				if err != nil {
					return err
				}
				a.memory.AddContract(chain.NewSmartContract(address, code, "", ""))
			}

			if opts.Save {
				if err := a.openStore(ctx); err != nil {
					return err
				}
			}

			sa, err := a.buildAnalyzer()
			if err != nil {
				return err
			}
			report, err := sa.Analyze(ctx, address)
			if err != nil {
				return err
			}

			if a.store != nil {
				record, err := a.store.SaveSecurityReport(ctx, address, report)
				if err != nil {
					return err
				}
				a.logger.Info("saved report %s", record.ID)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&opts.Bytecode, "bytecode", "", "Hex-encoded runtime bytecode to analyze offline")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Persist the report to the configured store")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
