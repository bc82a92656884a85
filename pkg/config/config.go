package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Conflict policy names accepted in configuration. Exactly one policy
// governs a whole run; it applies to both dimensions and every
// attribute.
const (
	ConflictPolicyFail     = "fail"
	ConflictPolicyOverride = "override"
)

// Config holds all configuration for the trends ETL pipeline.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values. Secrets (the
// database password) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// InputPath is the flat CSV snapshot the record source reads.
	InputPath string `yaml:"input_path" env:"INPUT_PATH" env-default:"data/shopping_trends.csv"`

	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"trends"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"trends_warehouse"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`

	// ConnectTimeoutSeconds bounds the initial connect-and-ping; on
	// expiry the run fails instead of hanging.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" env:"PGCONNECT_TIMEOUT" env-default:"15"`
}

// PipelineConfig holds transform and load settings.
type PipelineConfig struct {
	// BatchSize bounds how many rows are written per transaction.
	BatchSize int `yaml:"batch_size" env:"ETL_BATCH_SIZE" env-default:"500"`

	// CommitTimeoutSeconds bounds each batch commit.
	CommitTimeoutSeconds int `yaml:"commit_timeout_seconds" env:"ETL_COMMIT_TIMEOUT" env-default:"30"`

	// ConflictPolicy decides what happens when duplicate source rows
	// disagree on dimension attributes: "fail" aborts the run after
	// extraction, "override" keeps the later value and logs a warning.
	ConflictPolicy string `yaml:"conflict_policy" env:"ETL_CONFLICT_POLICY" env-default:"fail"`
}

// Load reads configuration from the given YAML file with environment
// variable overrides. The version parameter is injected at build time
// and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.CommitTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.commit_timeout_seconds must be positive, got %d", c.Pipeline.CommitTimeoutSeconds)
	}
	switch c.Pipeline.ConflictPolicy {
	case ConflictPolicyFail, ConflictPolicyOverride:
	default:
		return fmt.Errorf("pipeline.conflict_policy must be %q or %q, got %q",
			ConflictPolicyFail, ConflictPolicyOverride, c.Pipeline.ConflictPolicy)
	}
	if c.InputPath == "" {
		return fmt.Errorf("input_path must not be empty")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *DatabaseConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// CommitTimeout returns the per-batch commit timeout as a duration.
func (c *PipelineConfig) CommitTimeout() time.Duration {
	return time.Duration(c.CommitTimeoutSeconds) * time.Second
}
