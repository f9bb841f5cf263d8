package cli

import (
	"github.com/dmitrijs2005/storagecrypt/internal/encryption"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/spf13/cobra"
)

func NewEncryptCommand(opts *RootOptions) *cobra.Command {
	var (
		dest  int64
		alias string
	)

	cmd := &cobra.Command{
		Use:   "encrypt --dest <folder-id> <path>...",
		Short: "Encrypt local files and folders into the document tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			p := encryption.New(app.docs, app.fs,
				encryption.WithControl(&process.Control{}),
				encryption.WithListener(newConsoleListener(cmd.ErrOrStderr())),
				encryption.WithLogger(app.logger),
				encryption.WithClock(app.clock),
			)
			results, err := p.Run(cmd.Context(), encryption.Request{
				Paths:       args,
				Destination: dest,
				KeyAlias:    alias,
			})
			if err != nil {
				return err
			}
			return results.Render(cmd.OutOrStdout(), "Encryption", func(i encryption.Item) string {
				return i.Source + " -> " + i.Document.String()
			})
		},
	}

	cmd.Flags().Int64Var(&dest, "dest", 0, "destination folder id")
	cmd.Flags().StringVar(&alias, "alias", "", "key alias (defaults to the destination's)")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}
