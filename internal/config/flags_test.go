package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{name: "all flags", args: []string{
			"-r", "pgx", "-d", "postgres://db", "-s", "/var/lib/sc", "-l", "/var/log/sc.log",
			"-i", "60", "-a", ":8080", "-g", ":9090", "-p", "8.8.8.8:53",
		}, expected: &Config{
			DatabaseDriver:        "pgx",
			DatabaseDSN:           "postgres://db",
			DataDir:               "/var/lib/sc",
			LogFile:               "/var/log/sc.log",
			SyncInterval:          time.Minute,
			StatusAddr:            ":8080",
			HealthAddr:            ":9090",
			ConnectivityProbeAddr: "8.8.8.8:53",
		}},
		{name: "equals form", args: []string{"-d=x.db", "sync"}, expected: &Config{DatabaseDSN: "x.db"}},
		{name: "incorrect interval", args: []string{"-i", "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			err := parseFlags(cfg, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
