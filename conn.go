package sqlt

import (
	"context"
	"database/sql"
	"time"
)

// preparer is what a statement is prepared on: a borrowed *sql.Conn, or the
// *sql.Tx of the active transaction scope.
type preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ preparer = (*sql.Conn)(nil)
	_ preparer = (*sql.Tx)(nil)
)

// StatementFunc runs against a prepared statement with the arguments to bind.
type StatementFunc[R any] func(ctx context.Context, stmt *sql.Stmt, args []any) (R, error)

// Execute prepares query on the connection of the current unit of work, hands
// the statement to fn and releases the connection afterwards. It is the
// primitive Update, Query and QueryForObject are built on; use it for
// statement shapes they do not cover. Errors returned by fn are translated
// like driver errors.
func Execute[R any](ctx context.Context, t *Template, query string, args []any, fn StatementFunc[R]) (R, error) {
	return execute(ctx, t, "execute", query, args, fn)
}

// execute is the per-call state machine: check binding, acquire, prepare,
// run, release. Release happens on every path once a connection is held.
func execute[R any](ctx context.Context, t *Template, op, query string, args []any, fn StatementFunc[R]) (R, error) {
	var out R
	if !t.config.SkipPlaceholderCheck {
		if err := checkArgs(t.dialect, query, args); err != nil {
			return out, t.fail(op, query, err)
		}
	}

	start := time.Now()
	err := t.withConn(ctx, func(p preparer, inTx bool) error {
		t.log.Debug().
			Str("op", op).
			Str("sql", query).
			Int("args", len(args)).
			Bool("tx", inTx).
			Msg("sqlt: executing statement")

		stmt, err := p.PrepareContext(ctx, query)
		if err != nil {
			return translate(stagePrepare, err)
		}
		defer stmt.Close()

		res, err := fn(ctx, stmt, args)
		if err != nil {
			return translate(stageExec, err)
		}
		out = res
		return nil
	})
	t.observe(op, query, time.Since(start))
	if err != nil {
		var zero R
		return zero, t.fail(op, query, err)
	}
	return out, nil
}

// withConn runs body on the connection of the current unit of work. Inside a
// transaction scope for this template's pool it reuses the scope's
// transaction and leaves release to the scope. Otherwise it borrows a
// connection and returns it exactly once, whatever body does.
func (t *Template) withConn(ctx context.Context, body func(p preparer, inTx bool) error) error {
	if s := t.scope(ctx); s != nil {
		return body(s.tx, true)
	}

	conn, err := t.acquire(ctx)
	if err != nil {
		return err
	}
	defer t.release(conn)

	return body(conn, false)
}

// acquire borrows a connection, bounded by Config.AcquireTimeout.
func (t *Template) acquire(ctx context.Context) (*sql.Conn, error) {
	if t.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.AcquireTimeout)
		defer cancel()
	}
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, translate(stageAcquire, err)
	}
	if conn == nil {
		return nil, &Error{Kind: ConnectionUnavailable, Err: sql.ErrConnDone}
	}
	return conn, nil
}

// release hands conn back to the pool. A failing release is logged, never
// retried: the connection is considered returned either way.
func (t *Template) release(conn *sql.Conn) {
	if err := t.pool.Release(conn); err != nil {
		t.log.Warn().Err(err).Msg("sqlt: connection release failed")
	}
}

// observe reports statements slower than Config.SlowQueryThreshold.
func (t *Template) observe(op, query string, elapsed time.Duration) {
	if t.config.SlowQueryThreshold <= 0 || elapsed < t.config.SlowQueryThreshold {
		return
	}
	t.log.Warn().
		Str("op", op).
		Str("sql", query).
		Dur("elapsed", elapsed).
		Msg("sqlt: slow statement")
}

// fail stamps op and query on err, logs it and returns it as an *Error.
func (t *Template) fail(op, query string, err error) error {
	e := *translate(stageExec, err)
	if e.Op == "" {
		e.Op = op
	}
	if e.SQL == "" {
		e.SQL = query
	}
	t.log.Error().
		Err(e.Err).
		Str("op", e.Op).
		Str("kind", e.Kind.String()).
		Str("code", e.Code).
		Str("sql", e.SQL).
		Msg("sqlt: statement failed")
	return &e
}
