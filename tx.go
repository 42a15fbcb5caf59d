package sqlt

import (
	"context"
	"database/sql"
	"errors"
)

// txKey is the context key under which InTx stores its scope.
type txKey struct{}

// txScope is a transaction bound to one borrowed connection. Scopes for
// different pools chain through parent, so nesting across pools is safe.
type txScope struct {
	key    any
	tx     *sql.Tx
	parent *txScope
}

// InTx runs fn inside a transaction held on a single connection. Template
// calls made with the context passed to fn reuse that connection and never
// release it; the connection is released once, when InTx returns.
//
// The transaction commits when fn returns nil and rolls back when fn returns
// an error or panics. If ctx already carries a transaction for the same pool,
// fn simply joins it and the outermost InTx decides the outcome; opts are
// ignored in that case.
//
// The context passed to fn must not be shared with concurrent goroutines: a
// transaction is a single connection.
func (t *Template) InTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	if s := t.scope(ctx); s != nil {
		return fn(ctx)
	}

	conn, err := t.acquire(ctx)
	if err != nil {
		return t.fail("begin", "", err)
	}
	defer t.release(conn)

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return t.fail("begin", "", translate(stageBegin, err))
	}
	t.log.Debug().Msg("sqlt: transaction started")

	parent, _ := ctx.Value(txKey{}).(*txScope)
	txCtx := context.WithValue(ctx, txKey{}, &txScope{key: t.key, tx: tx, parent: parent})

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, t.fail("rollback", "", translate(stageEnd, rbErr)))
		}
		t.log.Debug().Err(err).Msg("sqlt: transaction rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		return t.fail("commit", "", translate(stageEnd, err))
	}
	t.log.Debug().Msg("sqlt: transaction committed")
	return nil
}

// InTransaction reports whether ctx carries a transaction for t's pool.
func (t *Template) InTransaction(ctx context.Context) bool {
	return t.scope(ctx) != nil
}

// scope returns the transaction scope of ctx for t's pool, if any.
func (t *Template) scope(ctx context.Context) *txScope {
	s, _ := ctx.Value(txKey{}).(*txScope)
	for ; s != nil; s = s.parent {
		if s.key == t.key {
			return s
		}
	}
	return nil
}
