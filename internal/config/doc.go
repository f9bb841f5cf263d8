// Package config loads runtime configuration for storagecrypt.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-r string   database driver: sqlite or pgx
//	-d string   database DSN
//	-s string   data directory for encrypted backing files
//	-l string   log file (empty logs to stdout)
//	-i int      daemon sync interval (seconds)
//	-a string   HTTP status address of the daemon
//	-g string   gRPC health address of the daemon
//	-p string   connectivity probe address (empty disables the probe)
//
// # JSON schema
//
// Durations use timex.Duration, so "90s" and integer nanoseconds both work.
// Accounts can only be configured through JSON:
//
//	{
//	  "database_driver": "sqlite",
//	  "database_dsn": "storagecrypt.db",
//	  "data_dir": "data",
//	  "sync_interval": "5m",
//	  "api_secret": "at-least-sixteen-chars",
//	  "token_validity": "24h",
//	  "accounts": [
//	    {"type": "s3", "name": "work", "bucket": "vault", "region": "us-east-1"},
//	    {"type": "folder", "name": "nas", "path": "/mnt/nas/storagecrypt"}
//	  ]
//	}
package config
