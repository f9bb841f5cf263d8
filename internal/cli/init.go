package cli

import (
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/spf13/cobra"
)

func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Set the master password of a new store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			pw, err := GetNewPassword(opts.reader, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)

			if err := app.keyStore.Initialize(cmd.Context(), pw); err != nil {
				return err
			}
			if err := app.Unlock(cmd.Context(), pw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Store initialized.")
			return nil
		},
	}
}
