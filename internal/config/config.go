// Package config defines the configuration contract for the loader and the
// connection it drives, and loads it from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full, immutable configuration for one table load. It is
// constructed once (from a file or programmatically) and handed to the
// Loader at construction time; nothing in this package mutates it.
type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Load     LoadConfig     `yaml:"load"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PostgresConfig carries the connection descriptor and session settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	ClientEncoding    string `yaml:"client_encoding"`
	DateStyle         string `yaml:"datestyle"`
	LCMessages        string `yaml:"lc_messages"`
	ClientMinMessages string `yaml:"client_min_messages"`
}

// LoadConfig holds the options that control one table load.
type LoadConfig struct {
	CopySep       string `yaml:"copy_sep"`
	CopyEvery     int    `yaml:"copy_every"`
	CommitEvery   int    `yaml:"commit_every"`
	NullMarker    string `yaml:"null_marker"`
	EmptyMarker   string `yaml:"empty_marker"`
	InputEncoding string `yaml:"input_encoding"`
	DryRun        bool   `yaml:"dry_run"`
	Vacuum        bool   `yaml:"vacuum"`
	Pedantic      bool   `yaml:"pedantic"`
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CopySepByte returns the configured COPY delimiter as a single byte,
// defaulting to TAB.
func (l LoadConfig) CopySepByte() byte {
	if l.CopySep == "" {
		return '\t'
	}
	return l.CopySep[0]
}

// Load reads and parses a YAML configuration file, then fills in defaults
// for any zero-valued fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.ClientEncoding == "" {
		c.Postgres.ClientEncoding = "UTF8"
	}
	if c.Load.CopySep == "" {
		c.Load.CopySep = "\t"
	}
	if c.Load.CopyEvery == 0 {
		c.Load.CopyEvery = 10000
	}
	if c.Load.CommitEvery == 0 {
		c.Load.CommitEvery = 1000
	}
	if c.Load.NullMarker == "" {
		c.Load.NullMarker = `\N`
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// DSN returns the libpq-style connection string for this configuration.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// DebugVerbose reports whether client_min_messages is set to a DEBUG level.
func (p PostgresConfig) DebugVerbose() bool {
	return strings.HasPrefix(strings.ToUpper(p.ClientMinMessages), "DEBUG")
}

// FromEnv builds a Config from POSTGRES_* environment variables, for the
// common case of running without a YAML file.
func FromEnv() *Config {
	cfg := &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			Database: getEnv("POSTGRES_DB", "postgres"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}
