package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gandaldf/sqlt"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_EnvOnly_DefaultsApplied loads the required keys from the
// environment and keeps defaults for the rest.
func TestLoad_EnvOnly_DefaultsApplied(t *testing.T) {
	t.Setenv("SQLT_DATABASE__DRIVER", "pgx")
	t.Setenv("SQLT_DATABASE__DSN", "postgres://app@localhost/app")
	t.Setenv("SQLT_TEMPLATE__STRICT_SINGLE_ROW", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "pgx" || cfg.Database.DSN != "postgres://app@localhost/app" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 10 || cfg.Database.PingTimeout != 5*time.Second {
		t.Fatalf("defaults lost: %+v", cfg.Database)
	}
	if !cfg.Template.StrictSingleRow {
		t.Fatalf("strict_single_row not read from env")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

// TestLoad_YAMLThenEnv checks the file is read and the environment wins.
func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
database:
  driver: mysql
  dsn: "app:secret@tcp(localhost:3306)/app"
  max_open_conns: 20
  conn_max_lifetime: 1h
template:
  acquire_timeout: 250ms
  slow_query_threshold: 2s
log:
  level: debug
  format: json
`)
	t.Setenv("SQLT_DATABASE__MAX_OPEN_CONNS", "40")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.MaxOpenConns != 40 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.ConnMaxLifetime != time.Hour {
		t.Fatalf("conn_max_lifetime = %s", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Template.AcquireTimeout != 250*time.Millisecond || cfg.Template.SlowQueryThreshold != 2*time.Second {
		t.Fatalf("template = %+v", cfg.Template)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

// TestLoad_Invalid rejects missing and unsupported values.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing dsn", map[string]string{"SQLT_DATABASE__DRIVER": "mysql"}, "DSN"},
		{"unknown driver", map[string]string{"SQLT_DATABASE__DRIVER": "oracle", "SQLT_DATABASE__DSN": "x"}, "Driver"},
		{"bad log format", map[string]string{"SQLT_DATABASE__DRIVER": "mysql", "SQLT_DATABASE__DSN": "x", "SQLT_LOG__FORMAT": "xml"}, "Format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error about %s, got %v", tt.want, err)
			}
		})
	}
}

// TestLoad_MissingFile reports the path.
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "nope.yaml") {
		t.Fatalf("expected file error, got %v", err)
	}
}

// TestLoad_MalformedYAML reports a parse failure.
func TestLoad_MalformedYAML(t *testing.T) {
	path := writeYAML(t, "database: [unclosed\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected yaml error for %s, got %v", path, err)
	}
}

// TestEnvKey maps nested names.
func TestEnvKey(t *testing.T) {
	if got := envKey("SQLT_DATABASE__MAX_IDLE_CONNS"); got != "database.max_idle_conns" {
		t.Fatalf("envKey = %q", got)
	}
}

// TestConversions checks the helpers feeding the template.
func TestConversions(t *testing.T) {
	if d := (DatabaseConfig{Driver: "pgx"}).Dialect(); d != sqlt.Postgres {
		t.Fatalf("pgx dialect = %s", d)
	}
	if d := (DatabaseConfig{Driver: "mysql"}).Dialect(); d != sqlt.MySQL {
		t.Fatalf("mysql dialect = %s", d)
	}
	o := TemplateConfig{AcquireTimeout: time.Second, StrictSingleRow: true}.Options()
	if o.AcquireTimeout != time.Second || !o.StrictSingleRow || o.Logger != nil {
		t.Fatalf("options = %+v", o)
	}
}
