// Package config loads the driver configuration file.
//
// Usage:
//
//	cfg, err := config.Load("ocisql.yaml")
//	if err != nil { ... }
//	env, err := database.NewEnvironment(lib, database.WithInt64(cfg.Int64()))
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/ocisql/internal/errs"
)

// Backend identifies the database engine behind the native library.
type Backend string

const (
	BackendPostgres Backend = "postgres" // pgx stdlib driver
	BackendPQ       Backend = "pq"       // lib/pq driver
	BackendMySQL    Backend = "mysql"
	BackendSQLite   Backend = "sqlite"
)

// Precision selects how integer-valued numbers are handed to callers.
type Precision string

const (
	// PrecisionInt64 decodes integers exactly as int64/uint64.
	PrecisionInt64 Precision = "int64"
	// PrecisionDouble widens every number to float64.
	PrecisionDouble Precision = "double"
)

// Config holds all settings for a driver process.
type Config struct {
	Backend  Backend `yaml:"backend"`
	Source   string  `yaml:"source"`
	User     string  `yaml:"user"`
	Password string  `yaml:"password"`

	Precision    Precision `yaml:"precision"`
	PrefetchRows int       `yaml:"prefetch_rows"`

	// AutoCommit commits each command-line statement on success. When off
	// the statement's transaction is rolled back as the connection closes.
	AutoCommit bool `yaml:"autocommit"`

	Log  LogConfig  `yaml:"log"`
	HTTP HTTPConfig `yaml:"http"`
}

// LogConfig mirrors logger.Config for the file format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig configures the handle API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Backend:      BackendSQLite,
		Source:       "ocisql.db",
		Precision:    PrecisionInt64,
		PrefetchRows: 0,
		AutoCommit:   true,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads and parses the YAML file at path on top of Default.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindArgument, "failed to read config file", err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes on top of Default and validates the result.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindArgument, "invalid config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgres, BackendPQ, BackendMySQL, BackendSQLite:
	default:
		return errs.Argument(fmt.Sprintf("unknown backend %q", c.Backend))
	}
	switch c.Precision {
	case PrecisionInt64, PrecisionDouble:
	default:
		return errs.Argument(fmt.Sprintf("unknown precision %q", c.Precision))
	}
	if c.PrefetchRows < 0 {
		return errs.Argument("prefetch_rows must not be negative")
	}
	return nil
}

// Int64 reports whether exact 64-bit integer decoding is enabled.
func (c *Config) Int64() bool {
	return c.Precision != PrecisionDouble
}
