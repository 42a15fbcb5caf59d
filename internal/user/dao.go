package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gandaldf/sqlt"
)

var (
	userMapper    = sqlt.StrictStructMapper[*User]()
	historyMapper = sqlt.StructMapper[History]()
)

// Dao reads and writes the users table.
type Dao struct {
	tpl *sqlt.Template
	sql statements
}

// NewDao returns a Dao issuing statements in tpl's dialect.
func NewDao(tpl *sqlt.Template) *Dao {
	return &Dao{tpl: tpl, sql: statementsFor(tpl.Dialect())}
}

// Insert stores u and sets u.ID to the generated key.
func (d *Dao) Insert(ctx context.Context, u *User) error {
	args := []any{u.Account, u.Password, u.Email}

	if d.sql.insertReturns {
		id, err := sqlt.QueryForObject(ctx, d.tpl, d.sql.insert, sqlt.ScalarMapper[int64](), args...)
		if err != nil {
			return err
		}
		u.ID = id
		return nil
	}

	id, err := sqlt.Execute(ctx, d.tpl, d.sql.insert, args,
		func(ctx context.Context, stmt *sql.Stmt, args []any) (int64, error) {
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return 0, err
			}
			return res.LastInsertId()
		})
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// Update writes every column of u.
func (d *Dao) Update(ctx context.Context, u *User) error {
	n, err := d.tpl.Update(ctx, d.sql.update, u.Account, u.Password, u.Email, u.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, u.ID)
	}
	return nil
}

// FindByID returns the user with the given id, or ErrNotFound.
func (d *Dao) FindByID(ctx context.Context, id int64) (*User, error) {
	u, err := sqlt.QueryForObject(ctx, d.tpl, d.sql.findByID, userMapper, id)
	if errors.Is(err, sqlt.ErrNoResult) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return u, err
}

// FindByAccount returns the user owning account, or ErrNotFound.
func (d *Dao) FindByAccount(ctx context.Context, account string) (*User, error) {
	u, err := sqlt.QueryForObject(ctx, d.tpl, d.sql.findByAccount, userMapper, account)
	if errors.Is(err, sqlt.ErrNoResult) {
		return nil, fmt.Errorf("%w: account %q", ErrNotFound, account)
	}
	return u, err
}

// FindAll returns every user ordered by id.
func (d *Dao) FindAll(ctx context.Context) ([]*User, error) {
	return sqlt.Query(ctx, d.tpl, d.sql.findAll, userMapper)
}

// HistoryDao appends to the user_history table.
type HistoryDao struct {
	tpl *sqlt.Template
	sql statements
}

// NewHistoryDao returns a HistoryDao issuing statements in tpl's dialect.
func NewHistoryDao(tpl *sqlt.Template) *HistoryDao {
	return &HistoryDao{tpl: tpl, sql: statementsFor(tpl.Dialect())}
}

// Log records h.
func (d *HistoryDao) Log(ctx context.Context, h History) error {
	_, err := d.tpl.Update(ctx, d.sql.logHistory, h.UserID, h.Account, h.Password, h.Email, h.CreatedAt, h.CreatedBy)
	return err
}

// FindByUser returns the history of one user, oldest first.
func (d *HistoryDao) FindByUser(ctx context.Context, userID int64) ([]History, error) {
	return sqlt.Query(ctx, d.tpl, d.sql.findHistory, historyMapper, userID)
}
