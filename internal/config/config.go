// Package config loads service settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
)

// EnvironmentDevelopment enables error detail in API responses.
const EnvironmentDevelopment = "development"

// Config is the full service configuration.
type Config struct {
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string

	StoreBackend    string
	SQLitePath      string
	DatabaseURL     string
	BigQueryProject string
	BigQueryDataset string

	NotionToken      string
	NotionDatabaseID string

	ArchiveBucket    string
	ArchiveWorkers   int
	ArchiveQueueSize int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("store_backend", BackendSQLite)
	v.SetDefault("sqlite_path", "data/openfinance.db")
	v.SetDefault("bigquery_dataset", "finance")
	v.SetDefault("archive_workers", 2)
	v.SetDefault("archive_queue_size", 100)
}

// Load reads configuration into a Config. When cfgFile is empty an optional
// config.yaml in the working directory is used.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Keys are the lower-case form of their environment variables.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("Load: read config: %w", err)
		}
	}

	cfg := Config{
		Port:             v.GetInt("port"),
		Environment:      strings.ToLower(strings.TrimSpace(v.GetString("environment"))),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		StoreBackend:     strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		SQLitePath:       v.GetString("sqlite_path"),
		DatabaseURL:      v.GetString("database_url"),
		BigQueryProject:  v.GetString("bigquery_project"),
		BigQueryDataset:  v.GetString("bigquery_dataset"),
		NotionToken:      strings.TrimSpace(v.GetString("notion_token")),
		NotionDatabaseID: strings.TrimSpace(v.GetString("notion_database_id")),
		ArchiveBucket:    strings.TrimSpace(v.GetString("archive_bucket")),
		ArchiveWorkers:   v.GetInt("archive_workers"),
		ArchiveQueueSize: v.GetInt("archive_queue_size"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs. Mirror
// settings are not validated here: an incomplete mirror is disabled, not fatal.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("Validate: invalid port %d", c.Port)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("Validate: SQLITE_PATH is required for the %s backend", c.StoreBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("Validate: DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendBigQuery:
		if c.BigQueryProject == "" || c.BigQueryDataset == "" {
			return fmt.Errorf("Validate: BIGQUERY_PROJECT and BIGQUERY_DATASET are required for the %s backend", c.StoreBackend)
		}
	default:
		return fmt.Errorf("Validate: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.ArchiveBucket != "" && (c.ArchiveWorkers <= 0 || c.ArchiveQueueSize < 0) {
		return fmt.Errorf("Validate: archive needs ARCHIVE_WORKERS > 0 and ARCHIVE_QUEUE_SIZE >= 0")
	}
	return nil
}

// IsDevelopment reports whether error detail may be shown to clients.
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// ArchiveEnabled reports whether raw payloads are archived.
func (c Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}
