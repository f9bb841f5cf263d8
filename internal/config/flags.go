package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/flagx"
)

var flagNames = []string{"-r", "-d", "-s", "-l", "-i", "-a", "-g", "-p"}

// parseFlags populates cfg from the flags it owns in args. Other arguments,
// such as subcommands and their flags, are filtered out first.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("storagecrypt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DatabaseDriver, "r", cfg.DatabaseDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.DataDir, "s", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	fs.StringVar(&cfg.StatusAddr, "a", cfg.StatusAddr, "HTTP status address")
	fs.StringVar(&cfg.HealthAddr, "g", cfg.HealthAddr, "gRPC health address")
	fs.StringVar(&cfg.ConnectivityProbeAddr, "p", cfg.ConnectivityProbeAddr, "connectivity probe address")

	if err := fs.Parse(flagx.FilterArgs(args, flagNames)); err != nil {
		return err
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	return nil
}
