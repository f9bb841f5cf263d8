package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewAccountsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts with their sync state and quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			all, err := app.accounts.All(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BACKEND\tNAME\tSTATE\tCURSOR\tUSED\tTOTAL")
			for _, a := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
					a.Backend, a.Name, a.SyncState, a.LastChangeID, a.Quota.Used, a.Quota.Total)
			}
			return tw.Flush()
		},
	}
}
