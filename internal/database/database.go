// Package database opens the connection pool the template borrows from.
//
// It handles:
//   - opening a *sql.DB for the configured driver (mysql or pgx)
//   - pool sizing and connection lifetimes
//   - a bounded ping so a bad DSN fails at startup
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/gandaldf/sqlt"
	"github.com/gandaldf/sqlt/internal/config"
)

// Database owns the *sql.DB and the template built on it.
type Database struct {
	DB       *sql.DB
	Template *sqlt.Template
	log      *zerolog.Logger
}

// New opens the pool described by cfg.Database, pings it and builds a
// template with cfg.Template.
func New(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*Database, error) {
	db, err := open(cfg.Database)
	if err != nil {
		return nil, err
	}
	d, err := setup(ctx, db, cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// open creates the driver-specific *sql.DB. No connection is made yet.
func open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "mysql":
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sql.Open("mysql", dsn)
	case "pgx":
		cc, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("database: parse pgx dsn: %w", err)
		}
		return stdlib.OpenDB(*cc), nil
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

// mysqlDSN normalizes a MySQL DSN so DATETIME columns scan into time.Time.
func mysqlDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database: parse mysql dsn: %w", err)
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

// setup applies the pool policy, checks connectivity and builds the template.
func setup(ctx context.Context, db *sql.DB, cfg *config.Config, log *zerolog.Logger) (*Database, error) {
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("database: ping %s: %w", cfg.Database.Driver, err)
	}

	opts := cfg.Template.Options()
	opts.Logger = log
	tpl := sqlt.New(sqlt.FromDB(db), cfg.Database.Dialect(), opts)

	if log != nil {
		log.Info().
			Str("driver", cfg.Database.Driver).
			Int("max_open_conns", cfg.Database.MaxOpenConns).
			Msg("database connected")
	}
	return &Database{DB: db, Template: tpl, log: log}, nil
}

// Close closes the pool.
func (d *Database) Close() error {
	if d.log != nil {
		d.log.Info().Msg("closing database")
	}
	return d.DB.Close()
}
