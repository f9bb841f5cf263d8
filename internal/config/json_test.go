package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestParseJSON_Overlay(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"database_dsn":   "vault.db",
		"sync_interval":  "90s",
		"pass_delay":     1000000000,
		"api_secret":     "0123456789abcdef",
		"token_validity": "1h",
		"accounts": []map[string]any{
			{"type": "s3", "name": "work", "bucket": "vault", "endpoint": "http://127.0.0.1:9000", "quota_bytes": 1024},
			{"type": "folder", "name": "nas", "path": "/mnt/nas"},
		},
	})

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseJSON(cfg, []string{"-config", path}))

	assert.Equal(t, "vault.db", cfg.DatabaseDSN)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver, "missing fields keep defaults")
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.Equal(t, time.Second, cfg.PassDelay)
	assert.Equal(t, "0123456789abcdef", cfg.APISecret)
	assert.Equal(t, time.Hour, cfg.TokenValidity)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, AccountConfig{
		Type: models.BackendS3, Name: "work", Bucket: "vault", Endpoint: "http://127.0.0.1:9000", QuotaBytes: 1024,
	}, cfg.Accounts[0])
	assert.Equal(t, "/mnt/nas", cfg.Accounts[1].Path)
}

func TestParseJSON_NoFileNoChanges(t *testing.T) {
	cfg := &Config{DatabaseDSN: "defaults.db", SyncInterval: 42 * time.Second}
	require.NoError(t, parseJSON(cfg, []string{"sync"}))
	assert.Equal(t, "defaults.db", cfg.DatabaseDSN)
	assert.Equal(t, 42*time.Second, cfg.SyncInterval)
}

func TestParseJSON_Invalid(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

	assert.Error(t, parseJSON(&Config{}, []string{"-c", bad}))
	assert.Error(t, parseJSON(&Config{}, []string{"-c", filepath.Join(t.TempDir(), "missing.json")}))
}

func TestLoad_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"database_dsn": "json.db", "data_dir": "/json"})

	cfg, err := Load([]string{"-c", path, "-d", "flag.db"})
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.DatabaseDSN)
	assert.Equal(t, "/json", cfg.DataDir)
}
