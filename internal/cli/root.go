// Package cli is the storagecrypt command tree.
package cli

import (
	"bufio"
	"context"
	"io"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/config"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// RootOptions holds state shared by every command.
type RootOptions struct {
	// Args is the raw command line; configuration flags are read from it.
	Args    []string
	Verbose bool

	cfg       *config.Config
	logger    logging.Logger
	logCloser io.Closer
	fs        afero.Fs
	reader    *bufio.Reader
}

// NewRootCommand creates the root command for the storagecrypt binary.
// Configuration flags (-d, -r, -s, -l, -i, -a, -g, -p, -c) may appear
// anywhere on the command line.
func NewRootCommand(args []string) *cobra.Command {
	opts := &RootOptions{Args: args, fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:          "storagecrypt",
		Short:        "StorageCrypt - encrypted documents on remote storage",
		Long:         "Keeps an encrypted document tree locally and synchronizes it with S3 buckets and mounted folders.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.Args)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			logger, closer := logging.New(logging.Options{
				File:       cfg.LogFile,
				Level:      level,
				MaxSizeMB:  cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
				MaxAgeDays: cfg.LogMaxAgeDays,
				Output:     cmd.ErrOrStderr(),
			})
			opts.cfg, opts.logger, opts.logCloser = cfg, logger, closer
			opts.reader = bufio.NewReader(cmd.InOrStdin())
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
	}
	cmd.SetArgs(args)

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringP("config", "c", "", "JSON config file")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAliasCommand(opts))
	cmd.AddCommand(NewAccountsCommand(opts))
	cmd.AddCommand(NewLsCommand(opts))
	cmd.AddCommand(NewEncryptCommand(opts))
	cmd.AddCommand(NewDecryptCommand(opts))
	cmd.AddCommand(NewRmCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	allowConfigFlags(cmd)
	return cmd
}

// allowConfigFlags lets the configuration flags, which cobra does not know
// about, pass through every command.
func allowConfigFlags(cmd *cobra.Command) {
	cmd.FParseErrWhitelist.UnknownFlags = true
	for _, c := range cmd.Commands() {
		allowConfigFlags(c)
	}
}

func (o *RootOptions) open(ctx context.Context) (*App, error) {
	return Open(ctx, o.cfg, o.logger, o.fs)
}

// openUnlocked opens the app and unlocks it with the master password.
func (o *RootOptions) openUnlocked(cmd *cobra.Command) (*App, error) {
	app, err := o.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	pw, err := GetPassword(o.reader, cmd.ErrOrStderr(), "Master password")
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	defer common.WipeByteArray(pw)

	if err := app.Unlock(cmd.Context(), pw); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}
