// Package config loads helm-actions settings from the environment, with an
// optional YAML file layered on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// Config holds server and CLI configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Dialect  string `yaml:"dialect"`

	// CatalogPath is a YAML action catalog. CatalogDatabaseURL, when set,
	// loads the catalog from Postgres instead.
	CatalogPath        string `yaml:"catalog_path"`
	CatalogDatabaseURL string `yaml:"catalog_database_url"`

	// SchemaPath is a YAML schema file. SchemaDriver and SchemaDSN, when
	// set, introspect a live database instead.
	SchemaPath   string `yaml:"schema_path"`
	SchemaDriver string `yaml:"schema_driver"`
	SchemaDSN    string `yaml:"schema_dsn"`

	// Types maps extra coercion type ids to JSON Schema documents.
	Types map[string]string `yaml:"types"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	Environment      string `yaml:"environment"`
	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`
	OTLPInsecure     bool   `yaml:"otlp_insecure"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:               getenv("PORT", "8080"),
		LogLevel:           getenv("LOG_LEVEL", "INFO"),
		Dialect:            getenv("QUERY_DIALECT", "ansi"),
		CatalogPath:        os.Getenv("CATALOG_PATH"),
		CatalogDatabaseURL: os.Getenv("CATALOG_DATABASE_URL"),
		SchemaPath:         os.Getenv("SCHEMA_PATH"),
		SchemaDriver:       os.Getenv("SCHEMA_DRIVER"),
		SchemaDSN:          os.Getenv("SCHEMA_DSN"),
		RateLimitRPS:       getenvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getenvInt("RATE_LIMIT_BURST", 20),
		Environment:        getenv("ENVIRONMENT", "development"),
		TelemetryEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:       getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:       os.Getenv("OTEL_INSECURE") == "true",
	}
}

// LoadFile loads the environment configuration and overlays the keys
// present in the YAML file at path.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if _, err := query.ParseDialect(c.Dialect); err != nil {
		errs = append(errs, err)
	}
	if c.SchemaDSN != "" && c.SchemaDriver != "sqlite" && c.SchemaDriver != "postgres" {
		errs = append(errs, fmt.Errorf("schema_driver must be sqlite or postgres, got %q", c.SchemaDriver))
	}
	if c.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_rps must be positive, got %v", c.RateLimitRPS))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_burst must be positive, got %d", c.RateLimitBurst))
	}
	return errors.Join(errs...)
}

// QueryDialect returns the configured dialect, defaulting to ANSI.
func (c *Config) QueryDialect() query.Dialect {
	d, err := query.ParseDialect(c.Dialect)
	if err != nil {
		return query.ANSI
	}
	return d
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean INFO.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
