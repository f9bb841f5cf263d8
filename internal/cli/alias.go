package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewAliasCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage key aliases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known key aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			for _, a := range app.keys.Aliases() {
				marker := ""
				if a == app.keys.DefaultAlias() {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", a, marker)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <alias>",
		Short: "Register a new key alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.keyStore.AddAlias(cmd.Context(), app.keys, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alias %q added.\n", args[0])
			return nil
		},
	})
	return cmd
}
