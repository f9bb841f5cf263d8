package config

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "sqlite", c.DatabaseDriver)
	assert.Equal(t, "storagecrypt.db", c.DatabaseDSN)
	assert.Equal(t, "data", c.DataDir)
	assert.Empty(t, c.LogFile)
	assert.Equal(t, 5*time.Minute, c.SyncInterval)
	assert.Equal(t, 2*time.Second, c.PassDelay)
	assert.Equal(t, "127.0.0.1:8088", c.StatusAddr)
	assert.Equal(t, "127.0.0.1:50051", c.HealthAddr)
	assert.Empty(t, c.ConnectivityProbeAddr)
	assert.Equal(t, 4096, c.MetadataCacheSize)
	assert.Empty(t, c.APISecret)
	assert.Equal(t, 24*time.Hour, c.TokenValidity)
}

func TestLoad_UsesDefaultsWithoutArgs(t *testing.T) {
	c, err := Load(nil)
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestLoad_IgnoresSubcommandArgs(t *testing.T) {
	c, err := Load([]string{"encrypt", "--dest", "7", "-d", "other.db", "file.txt"})
	require.NoError(t, err)
	assert.Equal(t, "other.db", c.DatabaseDSN)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "pgx", mutate: func(c *Config) { c.DatabaseDriver = "pgx" }, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }},
		{name: "zero interval", mutate: func(c *Config) { c.SyncInterval = 0 }},
		{name: "short api secret", mutate: func(c *Config) { c.APISecret = "short" }},
		{name: "api secret", mutate: func(c *Config) { c.APISecret = "0123456789abcdef" }, ok: true},
		{name: "s3 account", ok: true, mutate: func(c *Config) {
			c.Accounts = []AccountConfig{{Type: models.BackendS3, Name: "work", Bucket: "vault"}}
		}},
		{name: "s3 without bucket", mutate: func(c *Config) {
			c.Accounts = []AccountConfig{{Type: models.BackendS3, Name: "work"}}
		}},
		{name: "folder without path", mutate: func(c *Config) {
			c.Accounts = []AccountConfig{{Type: models.BackendFolder, Name: "nas"}}
		}},
		{name: "unsynchronized account", mutate: func(c *Config) {
			c.Accounts = []AccountConfig{{Type: models.BackendUnsynchronized, Name: "x"}}
		}},
		{name: "duplicate", mutate: func(c *Config) {
			a := AccountConfig{Type: models.BackendFolder, Name: "nas", Path: "/mnt"}
			c.Accounts = []AccountConfig{a, a}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
			}
		})
	}
}
