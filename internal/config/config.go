package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
)

// AccountConfig describes one remote backend account.
type AccountConfig struct {
	Type            models.BackendType `json:"type"`
	Name            string             `json:"name"`
	DefaultKeyAlias string             `json:"default_key_alias"`
	QuotaBytes      int64              `json:"quota_bytes"`

	// s3
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Prefix    string `json:"prefix"`

	// folder
	Path string `json:"path"`
}

// Validate checks the fields required by the account's backend type.
func (a AccountConfig) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: account name is empty", common.ErrInvalidConfiguration)
	}
	switch a.Type {
	case models.BackendS3:
		if a.Bucket == "" {
			return fmt.Errorf("%w: account %q: bucket is required", common.ErrInvalidConfiguration, a.Name)
		}
	case models.BackendFolder:
		if a.Path == "" {
			return fmt.Errorf("%w: account %q: path is required", common.ErrInvalidConfiguration, a.Name)
		}
	default:
		return fmt.Errorf("%w: account %q: unknown type %q", common.ErrInvalidConfiguration, a.Name, a.Type)
	}
	return nil
}

// Config holds runtime settings for the storagecrypt binary.
type Config struct {
	DatabaseDriver string
	DatabaseDSN    string
	DataDir        string

	LogFile       string
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	SyncInterval time.Duration
	PassDelay    time.Duration

	StatusAddr            string
	HealthAddr            string
	ConnectivityProbeAddr string

	// APISecret signs the bearer tokens required by the daemon's POST
	// endpoints. Empty leaves them open.
	APISecret     string
	TokenValidity time.Duration

	MetadataCacheSize int
	Accounts          []AccountConfig
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "storagecrypt.db"
	c.DataDir = "data"
	c.LogLevel = "info"
	c.LogMaxSizeMB = 10
	c.LogMaxBackups = 3
	c.LogMaxAgeDays = 28
	c.SyncInterval = 5 * time.Minute
	c.PassDelay = 2 * time.Second
	c.StatusAddr = "127.0.0.1:8088"
	c.HealthAddr = "127.0.0.1:50051"
	c.TokenValidity = 24 * time.Hour
	c.MetadataCacheSize = 4096
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfiguration, c.DatabaseDriver)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("%w: sync interval must be positive", common.ErrInvalidConfiguration)
	}
	if c.APISecret != "" && len(c.APISecret) < 16 {
		return fmt.Errorf("%w: api secret must be at least 16 characters", common.ErrInvalidConfiguration)
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for _, a := range c.Accounts {
		if err := a.Validate(); err != nil {
			return err
		}
		key := string(a.Type) + "/" + a.Name
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: account %s (%s) configured twice", common.ErrInvalidConfiguration, a.Type, a.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Load builds a Config from defaults, the JSON file named in args and the
// flags in args, in that order.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
