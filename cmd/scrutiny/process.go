package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrutinychain/sdk/pkg/api"
	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/errors"
)

type processOptions struct {
	File   string
	Hashes []string
	Save   bool
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the transaction analyzers over a batch of transactions",
		Long: `Run the configured transaction analyzers and print the batch results as JSON,
keyed by transaction hash.

Transactions come from --file (a JSON array, "-" for stdin) or are fetched
from chain.rpc_url with --hash. A transaction that fails is reported under
its hash and does not stop the batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.File == "") == (len(opts.Hashes) == 0) {
				return errors.E(errors.KindValidation, "process", "exactly one of --file or --hash is required")
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

			var txs []*chain.Transaction
			if opts.File != "" {
				txs, err = readTransactions(opts.File, cmd.InOrStdin())
				if err != nil {
					return err
				}
				// Offline: let the analyzers see the batch as chain history.
				if a.memory != nil {
					for _, tx := range txs {
						if tx != nil {
							a.memory.AddTransaction(tx)
						}
					}
				}
			} else {
				for _, raw := range opts.Hashes {
					hash, err := chain.ParseHash(raw)
					if err != nil {
						return err
					}
					tx, err := a.provider.GetTransaction(ctx, hash)
					if err != nil {
						return err
					}
					txs = append(txs, tx)
				}
			}

			if opts.Save {
				if err := a.openStore(ctx); err != nil {
					return err
				}
			}

			tp, err := a.buildProcessor()
			if err != nil {
				return err
			}
			batch, err := tp.ProcessBatch(ctx, txs)
			if err != nil {
				return err
			}

			if a.store != nil {
				record, err := a.store.SaveBatchReport(ctx, batch)
				if err != nil {
					return err
				}
				a.logger.Info("saved batch %s (%d transactions, %d failed)", record.ID, record.TxCount, record.FailedCount)
			}
			return printJSON(cmd.OutOrStdout(), batch)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `JSON array of transactions ("-" reads stdin)`)
	cmd.Flags().StringSliceVar(&opts.Hashes, "hash", nil, "Transaction hash to fetch from chain.rpc_url (repeatable)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Persist the batch to the configured store")
	return cmd
}

// readTransactions decodes a batch file in the same format the HTTP batch
// endpoint accepts.
func readTransactions(path string, stdin io.Reader) ([]*chain.Transaction, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.E(errors.KindValidation, "process", "open transactions file", err)
		}
		defer f.Close()
		r = f
	}

	var reqs []*api.TransactionRequest
	if err := json.NewDecoder(r).Decode(&reqs); err != nil {
		return nil, errors.E(errors.KindValidation, "process", "decode transactions", err)
	}
	txs := make([]*chain.Transaction, len(reqs))
	for i, req := range reqs {
		txs[i] = req.Transaction()
	}
	return txs, nil
}
