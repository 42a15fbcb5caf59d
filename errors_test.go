package sqlt

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// TestTranslate_Classification covers the kind chosen for each cause and stage.
func TestTranslate_Classification(t *testing.T) {
	tests := []struct {
		name     string
		st       stage
		err      error
		want     Kind
		wantCode string
	}{
		{"acquire anything", stageAcquire, errors.New("pool closed"), ConnectionUnavailable, ""},
		{"map anything", stageMap, errors.New("bad value"), Mapping, ""},

		{"pg syntax", stagePrepare, &pgconn.PgError{Code: "42601"}, Binding, "42601"},
		{"pg undefined parameter", stageExec, &pgconn.PgError{Code: "42P02"}, Binding, "42P02"},
		{"pg protocol violation", stageExec, &pgconn.PgError{Code: "08P01"}, Binding, "08P01"},
		{"pg connection class at begin", stageBegin, &pgconn.PgError{Code: "08006"}, ConnectionUnavailable, "08006"},
		{"pg connection class at exec", stageExec, &pgconn.PgError{Code: "08006"}, Execution, "08006"},
		{"pg unique violation", stageExec, &pgconn.PgError{Code: "23505"}, Execution, "23505"},
		{"pg wrapped", stageExec, fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "40001"}), Execution, "40001"},

		{"mysql parse error", stagePrepare, &mysql.MySQLError{Number: 1064}, Binding, "1064"},
		{"mysql wrong arguments", stageExec, &mysql.MySQLError{Number: 1210}, Binding, "1210"},
		{"mysql duplicate", stageExec, &mysql.MySQLError{Number: 1062}, Execution, "1062"},

		{"arg count", stageExec, errors.New("sql: expected 2 arguments, got 1"), Binding, ""},
		{"arg conversion", stageExec, errors.New(`sql: converting argument $1 type: unsupported type`), Binding, ""},

		{"bad conn at prepare", stagePrepare, driver.ErrBadConn, ConnectionUnavailable, ""},
		{"conn done at begin", stageBegin, sql.ErrConnDone, ConnectionUnavailable, ""},
		{"mysql invalid conn at exec", stageExec, mysql.ErrInvalidConn, Execution, ""},

		{"deadline", stageExec, context.DeadlineExceeded, Execution, ""},
		{"canceled at prepare", stagePrepare, context.Canceled, Execution, ""},

		{"unknown at prepare", stagePrepare, errors.New("near \"UPDAT\""), Binding, ""},
		{"unknown at exec", stageExec, errors.New("disk full"), Execution, ""},
		{"unknown at end", stageEnd, errors.New("commit failed"), Execution, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := translate(tt.st, tt.err)
			if e.Kind != tt.want {
				t.Fatalf("kind=%s, want %s", e.Kind, tt.want)
			}
			if e.Code != tt.wantCode {
				t.Fatalf("code=%q, want %q", e.Code, tt.wantCode)
			}
			if !errors.Is(e, tt.err) {
				t.Fatalf("cause lost: %v", e)
			}
		})
	}
}

// TestTranslate_PassThrough keeps an already classified error as is.
func TestTranslate_PassThrough(t *testing.T) {
	orig := &Error{Kind: Mapping, Err: errors.New("x")}
	if got := translate(stageExec, fmt.Errorf("ctx: %w", orig)); got != orig {
		t.Fatalf("expected same *Error, got %+v", got)
	}
}

// TestError_Format checks the message layout with and without optional parts.
func TestError_Format(t *testing.T) {
	tests := []struct {
		e    *Error
		want string
	}{
		{&Error{Kind: Binding, Err: ErrPlaceholderMismatch}, "sqlt: binding error: " + ErrPlaceholderMismatch.Error()},
		{&Error{Kind: Execution, Op: "update", Code: "1062", Err: errors.New("duplicate")}, "sqlt: execution error in update (code 1062): duplicate"},
		{&Error{Kind: ConnectionUnavailable, Op: "query"}, "sqlt: connection unavailable error in query"},
	}
	for _, tt := range tests {
		if got := tt.e.Error(); got != tt.want {
			t.Fatalf("Error() = %q, want %q", got, tt.want)
		}
	}
}

// TestError_IsKindSentinels matches each kind against its own sentinel only.
func TestError_IsKindSentinels(t *testing.T) {
	sentinels := map[Kind]error{
		Binding:               ErrBinding,
		Execution:             ErrExecution,
		Mapping:               ErrMapping,
		ConnectionUnavailable: ErrConnectionUnavailable,
	}
	for k := range sentinels {
		err := fmt.Errorf("outer: %w", &Error{Kind: k})
		for k2, s := range sentinels {
			if got := errors.Is(err, s); got != (k == k2) {
				t.Fatalf("errors.Is(%s, %v) = %v", k, s, got)
			}
		}
	}
}

// TestKindOf returns zero for foreign errors.
func TestKindOf(t *testing.T) {
	if k := KindOf(errors.New("plain")); k != 0 {
		t.Fatalf("KindOf(plain) = %s", k)
	}
	if k := KindOf(nil); k != 0 {
		t.Fatalf("KindOf(nil) = %s", k)
	}
	if k := KindOf(fmt.Errorf("w: %w", &Error{Kind: Mapping})); k != Mapping {
		t.Fatalf("KindOf(wrapped) = %s", k)
	}
}

// TestKindString covers every kind name.
func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		Binding:               "binding",
		Execution:             "execution",
		Mapping:               "mapping",
		ConnectionUnavailable: "connection unavailable",
		Kind(0):               "unknown",
		Kind(42):              "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
