package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrutinychain/sdk/pkg/analyzers"
	"github.com/scrutinychain/sdk/pkg/scanners"
)

func newScannersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scanners",
		Short: "List the built-in vulnerability scanners and transaction analyzers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME")
			for _, name := range scanners.NewRegistry().Names() {
				fmt.Fprintf(w, "scanner\t%s\n", name)
			}
			for _, name := range analyzers.NewRegistry().Names() {
				fmt.Fprintf(w, "analyzer\t%s\n", name)
			}
			return w.Flush()
		},
	}
}
