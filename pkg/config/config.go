package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for querypatrol.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values for fields
// that support both. Secrets (database passwords) must only come from
// environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Analysis engine tuning
	Analysis AnalysisConfig `yaml:"analysis"`

	// Relation metadata source (live database or static file)
	Relations RelationsConfig `yaml:"relations"`

	// MCP server configuration
	Serve ServeConfig `yaml:"serve"`
}

// AnalysisConfig tunes the pattern detectors.
type AnalysisConfig struct {
	// BurstThreshold is the repeat count at which a statement pattern is
	// reported as a burst.
	BurstThreshold int `yaml:"burst_threshold" env:"ANALYSIS_BURST_THRESHOLD" env-default:"3"`

	// DeepOffsetThreshold is the OFFSET depth at which pagination is
	// reported as unsustainable.
	DeepOffsetThreshold int `yaml:"deep_offset_threshold" env:"ANALYSIS_DEEP_OFFSET_THRESHOLD" env-default:"5000"`

	// LargeResultRows is the observed row count at which an unbounded
	// statement is reported.
	LargeResultRows int `yaml:"large_result_rows" env:"ANALYSIS_LARGE_RESULT_ROWS" env-default:"1000"`

	// MaxConcurrentDetectors bounds detector parallelism per batch.
	MaxConcurrentDetectors int `yaml:"max_concurrent_detectors" env:"ANALYSIS_MAX_CONCURRENT_DETECTORS" env-default:"4"`

	// DisabledDetectors lists detector names to skip, by finding kind.
	DisabledDetectors []string `yaml:"disabled_detectors" env:"ANALYSIS_DISABLED_DETECTORS" env-separator:","`
}

// RelationsConfig describes where relation facts (primary keys,
// associations) come from.
type RelationsConfig struct {
	// Dialect selects the live introspection provider: postgres or mssql.
	Dialect string `yaml:"dialect" env:"RELATIONS_DIALECT" env-default:"postgres"`

	Host     string `yaml:"host" env:"DBHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DBPORT" env-default:"5432"`
	User     string `yaml:"user" env:"DBUSER" env-default:"querypatrol"`
	Password string `yaml:"-" env:"DBPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DBNAME" env-default:""`
	Schema   string `yaml:"schema" env:"DBSCHEMA" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DBSSLMODE" env-default:"disable"`

	MaxConnections int32 `yaml:"max_connections" env:"DBMAX_CONNECTIONS" env-default:"4"`

	// FactsFile points at a static YAML facts file. When set it takes
	// precedence over live introspection.
	FactsFile string `yaml:"facts_file" env:"RELATIONS_FACTS_FILE" env-default:""`
}

// ServeConfig holds MCP server settings.
type ServeConfig struct {
	// Transport is stdio or http.
	Transport string `yaml:"transport" env:"SERVE_TRANSPORT" env-default:"stdio"`
	BindAddr  string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port      string `yaml:"port" env:"PORT" env-default:"8931"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. A missing config.yaml is not an error; configuration then
// comes from the environment alone.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	if c.Analysis.BurstThreshold < 2 {
		return fmt.Errorf("analysis.burst_threshold must be at least 2, got %d", c.Analysis.BurstThreshold)
	}
	if c.Analysis.DeepOffsetThreshold < 1 {
		return fmt.Errorf("analysis.deep_offset_threshold must be positive, got %d", c.Analysis.DeepOffsetThreshold)
	}
	if c.Analysis.LargeResultRows < 1 {
		return fmt.Errorf("analysis.large_result_rows must be positive, got %d", c.Analysis.LargeResultRows)
	}
	if c.Analysis.MaxConcurrentDetectors < 1 {
		return fmt.Errorf("analysis.max_concurrent_detectors must be positive, got %d", c.Analysis.MaxConcurrentDetectors)
	}

	switch c.Relations.Dialect {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unknown relations.dialect %q", c.Relations.Dialect)
	}

	switch c.Serve.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown serve.transport %q", c.Serve.Transport)
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *RelationsConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// SQLServerURL returns a go-mssqldb connection URL.
func (c *RelationsConfig) SQLServerURL() string {
	query := url.Values{}
	query.Add("database", c.Database)

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		query.Encode(),
	)
}
