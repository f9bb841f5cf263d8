package cli

import (
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/storagecrypt/internal/daemon"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/spf13/cobra"
)

func NewDaemonCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Synchronize on a schedule and serve status, metrics and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			app, err := opts.openUnlocked(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			control := &process.Control{}
			d := daemon.New(daemon.Options{
				Accounts:   app.accounts,
				Sync:       app.changeSync(control, process.NopListener()),
				Transfer:   app.transfer(control, process.NopListener()),
				Interval:   opts.cfg.SyncInterval,
				StatusAddr: opts.cfg.StatusAddr,
				HealthAddr: opts.cfg.HealthAddr,
				APISecret:  []byte(opts.cfg.APISecret),
				Clock:      app.clock,
				Logger:     app.logger,
			})

			app.logger.Info(ctx, "daemon started", "status", opts.cfg.StatusAddr, "health", opts.cfg.HealthAddr)
			return d.Run(ctx)
		},
	}
}
