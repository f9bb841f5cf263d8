package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/storagecrypt/internal/flagx"
	"github.com/dmitrijs2005/storagecrypt/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Missing
// fields keep the value already in Config.
type JsonConfig struct {
	DatabaseDriver        string          `json:"database_driver"`
	DatabaseDSN           string          `json:"database_dsn"`
	DataDir               string          `json:"data_dir"`
	LogFile               string          `json:"log_file"`
	LogLevel              string          `json:"log_level"`
	LogMaxSizeMB          int             `json:"log_max_size_mb"`
	LogMaxBackups         int             `json:"log_max_backups"`
	LogMaxAgeDays         int             `json:"log_max_age_days"`
	SyncInterval          timex.Duration  `json:"sync_interval"`
	PassDelay             timex.Duration  `json:"pass_delay"`
	StatusAddr            string          `json:"status_addr"`
	HealthAddr            string          `json:"health_addr"`
	ConnectivityProbeAddr string          `json:"connectivity_probe_addr"`
	APISecret             string          `json:"api_secret"`
	TokenValidity         timex.Duration  `json:"token_validity"`
	MetadataCacheSize     int             `json:"metadata_cache_size"`
	Accounts              []AccountConfig `json:"accounts"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// parseJSON overlays cfg with the file passed with -c or -config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.DatabaseDriver, jc.DatabaseDriver)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)
	setInt(&cfg.LogMaxSizeMB, jc.LogMaxSizeMB)
	setInt(&cfg.LogMaxBackups, jc.LogMaxBackups)
	setInt(&cfg.LogMaxAgeDays, jc.LogMaxAgeDays)
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.PassDelay.Duration != 0 {
		cfg.PassDelay = jc.PassDelay.Duration
	}
	setString(&cfg.StatusAddr, jc.StatusAddr)
	setString(&cfg.HealthAddr, jc.HealthAddr)
	setString(&cfg.ConnectivityProbeAddr, jc.ConnectivityProbeAddr)
	setString(&cfg.APISecret, jc.APISecret)
	if jc.TokenValidity.Duration != 0 {
		cfg.TokenValidity = jc.TokenValidity.Duration
	}
	setInt(&cfg.MetadataCacheSize, jc.MetadataCacheSize)
	if jc.Accounts != nil {
		cfg.Accounts = jc.Accounts
	}
	return nil
}
