package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/auth"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/spf13/cobra"
)

// NewTokenCommand prints a bearer token for the daemon's sync endpoints.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		subject  string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the daemon API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.APISecret == "" {
				return fmt.Errorf("%w: api_secret is not set", common.ErrInvalidConfiguration)
			}
			if validity <= 0 {
				validity = opts.cfg.TokenValidity
			}
			tok, err := auth.GenerateToken(subject, auth.ScopeSync, []byte(opts.cfg.APISecret), time.Now(), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "storagecrypt", "token subject")
	cmd.Flags().DurationVar(&validity, "validity", 0, "token lifetime (defaults to token_validity)")
	return cmd
}
