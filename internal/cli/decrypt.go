package cli

import (
	"github.com/dmitrijs2005/storagecrypt/internal/decryption"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/spf13/cobra"
)

func NewDecryptCommand(opts *RootOptions) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "decrypt --target <dir> <id>...",
		Short: "Decrypt documents into a local directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			p := decryption.New(app.docs, app.fs, &process.Control{},
				newConsoleListener(cmd.ErrOrStderr()), app.logger)
			results, err := p.Run(cmd.Context(), decryption.Request{Documents: ids, Target: target})
			if err != nil {
				return err
			}
			return results.Render(cmd.OutOrStdout(), "Decryption", func(i decryption.Item) string {
				return i.Document.String() + " -> " + i.Target
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", ".", "directory to write into")
	return cmd
}
