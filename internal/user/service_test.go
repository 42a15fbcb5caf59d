package user

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/gandaldf/sqlt"
)

func newMockTemplate(t *testing.T, d sqlt.Dialect) (*sqlt.Template, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	return sqlt.New(sqlt.FromDB(db), d), db, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "account", "password", "email"})
}

func assertMet(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	if inUse := db.Stats().InUse; inUse != 0 {
		t.Fatalf("connections in use: %d", inUse)
	}
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestChangePassword_CommitsOnOneConnection(t *testing.T) {
	tpl, db, mock := newMockTemplate(t, sqlt.MySQL)
	defer db.Close()

	st := mysqlStatements
	mock.ExpectBegin()
	mock.ExpectPrepare(st.findByID).ExpectQuery().WithArgs(1).
		WillReturnRows(userRows().AddRow(1, "gugu", "password", "hkkang@woowahan.com"))
	mock.ExpectPrepare(st.update).ExpectExec().
		WithArgs("gugu", "newPassword", "hkkang@woowahan.com", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(st.logHistory).ExpectExec().
		WithArgs(1, "gugu", "newPassword", "hkkang@woowahan.com", fixedNow, "gugu").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := NewService(tpl)
	s.now = func() time.Time { return fixedNow }
	if err := s.ChangePassword(context.Background(), 1, "newPassword", "gugu"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	assertMet(t, db, mock)
}

func TestChangePassword_HistoryFailure_RollsBack(t *testing.T) {
	tpl, db, mock := newMockTemplate(t, sqlt.MySQL)
	defer db.Close()

	st := mysqlStatements
	cause := errors.New("user_history is read only")
	mock.ExpectBegin()
	mock.ExpectPrepare(st.findByID).ExpectQuery().WithArgs(1).
		WillReturnRows(userRows().AddRow(1, "gugu", "password", "hkkang@woowahan.com"))
	mock.ExpectPrepare(st.update).ExpectExec().
		WithArgs("gugu", "newPassword", "hkkang@woowahan.com", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(st.logHistory).ExpectExec().WillReturnError(cause)
	mock.ExpectRollback()

	err := NewService(tpl).ChangePassword(context.Background(), 1, "newPassword", "gugu")
	if !errors.Is(err, cause) || sqlt.KindOf(err) != sqlt.Execution {
		t.Fatalf("expected execution error wrapping cause, got %v", err)
	}
	assertMet(t, db, mock)
}

func TestChangePassword_UnknownUser_RollsBack(t *testing.T) {
	tpl, db, mock := newMockTemplate(t, sqlt.Postgres)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(postgresStatements.findByID).ExpectQuery().WithArgs(9).WillReturnRows(userRows())
	mock.ExpectRollback()

	err := NewService(tpl).ChangePassword(context.Background(), 9, "x", "admin")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertMet(t, db, mock)
}

func TestChangePassword_EmptyPassword_RollsBack(t *testing.T) {
	tpl, db, mock := newMockTemplate(t, sqlt.MySQL)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(mysqlStatements.findByID).ExpectQuery().WithArgs(1).
		WillReturnRows(userRows().AddRow(1, "gugu", "password", "g@x"))
	mock.ExpectRollback()

	err := NewService(tpl).ChangePassword(context.Background(), 1, "", "gugu")
	if !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	assertMet(t, db, mock)
}
