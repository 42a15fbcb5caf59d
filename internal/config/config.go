// Package config loads the settings of the usersvc binary.
//
// Values come from an optional YAML file, then from environment variables
// prefixed with SQLT_ (a `.env` file is loaded first when present). A double
// underscore separates nesting levels:
//
//	SQLT_DATABASE__MAX_OPEN_CONNS -> database.max_open_conns
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gandaldf/sqlt"
)

const envPrefix = "SQLT_"

// Config is the root configuration object.
type Config struct {
	Database DatabaseConfig `koanf:"database" validate:"required"`
	Template TemplateConfig `koanf:"template"`
	Log      LogConfig      `koanf:"log"`
}

// DatabaseConfig selects the driver and tunes the connection pool.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" validate:"required,oneof=mysql pgx"`
	DSN             string        `koanf:"dsn" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"gte=0"`
	PingTimeout     time.Duration `koanf:"ping_timeout" validate:"gt=0"`
}

// TemplateConfig mirrors sqlt.Config.
type TemplateConfig struct {
	AcquireTimeout       time.Duration `koanf:"acquire_timeout" validate:"gte=0"`
	SlowQueryThreshold   time.Duration `koanf:"slow_query_threshold" validate:"gte=0"`
	StrictSingleRow      bool          `koanf:"strict_single_row"`
	SkipPlaceholderCheck bool          `koanf:"skip_placeholder_check"`
}

// LogConfig sets the level and output format of the process logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// Default returns the values used for keys no source sets.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Template: TemplateConfig{
			AcquireTimeout:     5 * time.Second,
			SlowQueryThreshold: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), overlays the
// SQLT_ environment and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// envKey maps SQLT_DATABASE__DSN to database.dsn.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Dialect returns the placeholder dialect of the configured driver.
func (c DatabaseConfig) Dialect() sqlt.Dialect {
	if c.Driver == "pgx" {
		return sqlt.Postgres
	}
	return sqlt.MySQL
}

// Options converts the template settings into sqlt.Config.
func (c TemplateConfig) Options() sqlt.Config {
	return sqlt.Config{
		AcquireTimeout:       c.AcquireTimeout,
		SlowQueryThreshold:   c.SlowQueryThreshold,
		StrictSingleRow:      c.StrictSingleRow,
		SkipPlaceholderCheck: c.SkipPlaceholderCheck,
	}
}
