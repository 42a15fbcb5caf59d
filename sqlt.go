package sqlt

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// Dialect identifies the SQL dialect for positional placeholder detection.
type Dialect int

// Template is the main entry point. It holds the connection pool, the dialect
// and the configuration; it has no other state.
// A single Template instance is safe for concurrent use.
type Template struct {
	pool    Pool
	key     any // identifies pool in transaction scopes
	dialect Dialect
	config  Config
	log     *zerolog.Logger
}

// Config defines diagnostics and behavior tweaks for the template.
type Config struct {
	// Logger receives statement and failure diagnostics.
	// If nil, logging is disabled.
	Logger *zerolog.Logger
	// AcquireTimeout bounds the wait for a pooled connection.
	// If = 0, the wait is bounded only by the caller's context.
	AcquireTimeout time.Duration
	// SlowQueryThreshold logs statements running longer than this at warn level.
	// If = 0, slow statements are not reported.
	SlowQueryThreshold time.Duration
	// StrictSingleRow makes QueryForObject fail with ErrMoreThanOneRow when the
	// query yields more than one row. By default the first row wins.
	StrictSingleRow bool
	// SkipPlaceholderCheck disables the up-front placeholder count check and
	// leaves argument count mismatches to the driver.
	SkipPlaceholderCheck bool
}

// Pool supplies connections. Acquire may block according to the pool's own
// wait policy; Release is called exactly once for every successful Acquire.
// Templates built on equal comparable pools share transaction scopes; a
// non-comparable pool only shares scopes with its own Template.
type Pool interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
	Release(conn *sql.Conn) error
}

// poolToken stands in for a non-comparable pool in transaction scopes.
type poolToken struct {
	pool Pool
}

// dbPool adapts *sql.DB to Pool.
type dbPool struct {
	db *sql.DB
}

const (
	Postgres Dialect = iota
	MySQL
	SQLite
	SQLServer
)

var (
	ErrPlaceholderMismatch = errors.New("sqlt: placeholder count does not match argument count")
	ErrNoResult            = errors.New("sqlt: query returned no rows")
	ErrMoreThanOneRow      = errors.New("sqlt: more than one row")
	ErrNilMapper           = errors.New("sqlt: nil row mapper")
	ErrColumnNotFound      = errors.New("sqlt: column not found")
	ErrFieldAmbiguous      = errors.New("sqlt: ambiguous field name")
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	default:
		return "unknown"
	}
}

// FromDB returns a Pool backed by a database/sql connection pool.
func FromDB(db *sql.DB) Pool {
	return &dbPool{db: db}
}

// Acquire borrows a dedicated connection from the pool.
func (p *dbPool) Acquire(ctx context.Context) (*sql.Conn, error) {
	return p.db.Conn(ctx)
}

// Release returns the connection to the pool.
func (p *dbPool) Release(conn *sql.Conn) error {
	return conn.Close()
}

// New returns a new Template over pool for the given dialect. Optionally
// provide a Config; unspecified fields keep their zero behavior.
func New(pool Pool, dialect Dialect, cfg ...Config) *Template {
	c := Config{}
	if len(cfg) > 0 {
		c = cfg[0]
	}
	log := c.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	var key any = pool
	if pool == nil || !reflect.ValueOf(pool).Comparable() {
		key = &poolToken{pool: pool}
	}
	return &Template{
		pool:    pool,
		key:     key,
		dialect: dialect,
		config:  c,
		log:     log,
	}
}

// Dialect returns the dialect the template was created with.
func (t *Template) Dialect() Dialect {
	return t.dialect
}

// Update executes a mutating statement and returns the number of affected rows.
func (t *Template) Update(ctx context.Context, query string, args ...any) (int64, error) {
	return execute(ctx, t, "update", query, args, func(ctx context.Context, stmt *sql.Stmt, args []any) (int64, error) {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
}

// Query executes a read statement and maps every row with m, in the order the
// result set yields them. If any row fails to map, no rows are returned.
func Query[T any](ctx context.Context, t *Template, query string, m RowMapper[T], args ...any) ([]T, error) {
	if m == nil {
		return nil, t.fail("query", query, &Error{Kind: Binding, Err: ErrNilMapper})
	}
	return execute(ctx, t, "query", query, args, func(ctx context.Context, stmt *sql.Stmt, args []any) (out []T, err error) {
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		// Propagate rows.Close() error if nothing else failed.
		defer func() {
			if cerr := rows.Close(); cerr != nil && err == nil {
				out, err = nil, cerr
			}
		}()

		for rows.Next() {
			v, mapErr := m.MapRow(rows)
			if mapErr != nil {
				return nil, mappingError(mapErr)
			}
			out = append(out, v)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// QueryForObject executes a read statement expecting a single row and maps it
// with m. It fails with ErrNoResult (Execution kind) when no row is returned.
// Extra rows are ignored unless Config.StrictSingleRow is set.
func QueryForObject[T any](ctx context.Context, t *Template, query string, m RowMapper[T], args ...any) (T, error) {
	var zero T
	rows, err := Query(ctx, t, query, m, args...)
	if err != nil {
		return zero, err
	}
	switch {
	case len(rows) == 0:
		return zero, t.fail("queryForObject", query, &Error{Kind: Execution, Err: ErrNoResult})
	case len(rows) > 1 && t.config.StrictSingleRow:
		return zero, t.fail("queryForObject", query, &Error{Kind: Execution, Err: ErrMoreThanOneRow})
	}
	return rows[0], nil
}
