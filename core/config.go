package core

import (
	"fmt"
	"strings"
	"time"
)

type SyncConfig struct {
	// DedupeWindow is the recent-event page size used for duplicate
	// suppression. A soft window, not a completeness guarantee.
	DedupeWindow int `koanf:"dedupe_window" mapstructure:"dedupe_window"`
	// DeletionPageLimit bounds the slow-path event fetch when the local
	// index does not cover a tombstone set.
	DeletionPageLimit    int           `koanf:"deletion_page_limit" mapstructure:"deletion_page_limit"`
	IndexRefreshInterval time.Duration `koanf:"index_refresh_interval" mapstructure:"index_refresh_interval"`
}

type SourceConfig struct {
	ExportDir    string        `koanf:"export_dir" mapstructure:"export_dir"`
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
}

type APIConfig struct {
	BaseURL   string `koanf:"base_url" mapstructure:"base_url"`
	AuthToken string `koanf:"auth_token" mapstructure:"auth_token"`
}

type StorageConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
}

type SigningConfig struct {
	Strategy string `koanf:"strategy" mapstructure:"strategy"`
	Secret   string `koanf:"secret" mapstructure:"secret"`
	KeyPath  string `koanf:"key_path" mapstructure:"key_path"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Sync        SyncConfig    `koanf:"sync" mapstructure:"sync"`
	Source      SourceConfig  `koanf:"source" mapstructure:"source"`
	API         APIConfig     `koanf:"api" mapstructure:"api"`
	Storage     StorageConfig `koanf:"storage" mapstructure:"storage"`
	Signing     SigningConfig `koanf:"signing" mapstructure:"signing"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "healthsync",
		Sync: SyncConfig{
			DedupeWindow:         100,
			DeletionPageLimit:    100,
			IndexRefreshInterval: 15 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: "sqlite3",
			DSN:    "file:healthsync.db?cache=shared&_foreign_keys=on",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Sync.DedupeWindow <= 0 {
		return fmt.Errorf("core: sync.dedupe_window must be positive")
	}
	if c.Sync.DeletionPageLimit <= 0 {
		return fmt.Errorf("core: sync.deletion_page_limit must be positive")
	}
	return nil
}
