// Package config loads testintel settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/kamilpajak/testintel/internal/analyzer"
)

// DefaultSQLitePath is the embedded database used when no DatabaseURL is set.
const DefaultSQLitePath = "testintel.db"

// Config holds every setting of the CLI and the server.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	Neo4jURI      string `yaml:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password"`
	Neo4jDatabase string `yaml:"neo4j_database"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Port int `yaml:"port"`

	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
	ServiceName  string `yaml:"service_name"`

	MetricsFile string `yaml:"metrics_file"`

	Analysis analyzer.Settings `yaml:"analysis"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SQLitePath:    DefaultSQLitePath,
		Neo4jDatabase: "neo4j",
		LogLevel:      "info",
		LogFormat:     "console",
		Port:          8080,
		OTELInsecure:  true,
		ServiceName:   "testintel",
		Analysis:      analyzer.DefaultSettings(),
	}
}

// Load builds the configuration. An empty path skips the file; a missing
// file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// decodeYAML overlays data onto cfg and rejects unknown keys.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var result *multierror.Error

	cfg.DatabaseURL = firstEnv(cfg.DatabaseURL, "TESTINTEL_DATABASE_URL", "DATABASE_URL")
	cfg.SQLitePath = firstEnv(cfg.SQLitePath, "TESTINTEL_SQLITE_PATH")
	cfg.Neo4jURI = firstEnv(cfg.Neo4jURI, "NEO4J_URI")
	cfg.Neo4jUser = firstEnv(cfg.Neo4jUser, "NEO4J_USER")
	cfg.Neo4jPassword = firstEnv(cfg.Neo4jPassword, "NEO4J_PASSWORD")
	cfg.Neo4jDatabase = firstEnv(cfg.Neo4jDatabase, "NEO4J_DATABASE")
	cfg.LogLevel = firstEnv(cfg.LogLevel, "TESTINTEL_LOG_LEVEL")
	cfg.LogFormat = firstEnv(cfg.LogFormat, "TESTINTEL_LOG_FORMAT")
	cfg.OTELEndpoint = firstEnv(cfg.OTELEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.ServiceName = firstEnv(cfg.ServiceName, "OTEL_SERVICE_NAME")
	cfg.MetricsFile = firstEnv(cfg.MetricsFile, "TESTINTEL_METRICS_FILE")

	if v := firstEnv("", "TESTINTEL_PORT", "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid port %q: %w", v, err))
		} else {
			cfg.Port = port
		}
	}
	if v := os.Getenv("TESTINTEL_OTEL_INSECURE"); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid TESTINTEL_OTEL_INSECURE %q: %w", v, err))
		} else {
			cfg.OTELInsecure = insecure
		}
	}
	if v := os.Getenv("TESTINTEL_FLAKY_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid TESTINTEL_FLAKY_THRESHOLD %q: %w", v, err))
		} else {
			cfg.Analysis.FlakyThreshold = threshold
		}
	}

	return result.ErrorOrNil()
}

// firstEnv returns the first non-empty variable among keys, or fallback.
func firstEnv(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return fallback
}

// Validate checks the whole configuration and reports every problem found.
func (c Config) Validate() error {
	var result *multierror.Error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port must be within 1-65535, got %d", c.Port))
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		result = multierror.Append(result, errors.New("either database_url or sqlite_path is required"))
	}
	if err := c.Analysis.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// UsesPostgres reports whether the SQL store is PostgreSQL rather than SQLite.
func (c Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// UsesNeo4j reports whether the graph store is Neo4j.
func (c Config) UsesNeo4j() bool {
	return c.Neo4jURI != ""
}
