package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/changesync"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/transfer"
	"github.com/spf13/cobra"
)

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var noTransfer bool

	cmd := &cobra.Command{
		Use:   "sync [<backend> <account>]",
		Short: "Pull remote changes and run planned transfers",
		Long: "Plans every account, or the named one, for change sync, applies the remote\n" +
			"changes and then executes planned deletions, uploads and downloads.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.New("expected no arguments or <backend> <account>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			if len(args) == 2 {
				backend := models.BackendType(args[0])
				a, err := app.accounts.Get(ctx, backend, args[1])
				if err != nil {
					return err
				}
				if a == nil {
					return fmt.Errorf("account %s (%s): %w", args[1], backend, common.ErrNotFound)
				}
				if _, err := app.accounts.Plan(ctx, backend, args[1]); err != nil {
					return err
				}
			} else if _, err := app.accounts.PlanAll(ctx); err != nil {
				return err
			}

			control := &process.Control{}
			listener := newConsoleListener(cmd.ErrOrStderr())

			synced, err := app.changeSync(control, listener).Run(ctx)
			if err != nil {
				return err
			}
			if err := synced.Render(cmd.OutOrStdout(), "Change sync", changesync.Item.String); err != nil {
				return err
			}
			if noTransfer {
				return nil
			}

			moved, err := app.transfer(control, listener).Run(ctx)
			if err != nil {
				return err
			}
			return moved.Render(cmd.OutOrStdout(), "Transfer", transfer.Item.String)
		},
	}

	cmd.Flags().BoolVar(&noTransfer, "no-transfer", false, "only apply remote changes")
	return cmd
}
