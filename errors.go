package sqlt

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failure of the template.
type Kind uint8

const (
	Binding               Kind = iota + 1 // parameters did not fit the statement
	Execution                             // the statement failed at the storage engine
	Mapping                               // a row could not be converted
	ConnectionUnavailable                 // no connection could be obtained
)

// Kind sentinels, for use with errors.Is.
var (
	ErrBinding               = errors.New("sqlt: binding error")
	ErrExecution             = errors.New("sqlt: execution error")
	ErrMapping               = errors.New("sqlt: mapping error")
	ErrConnectionUnavailable = errors.New("sqlt: connection unavailable")
)

// Error is returned by every template operation. Err holds the originating
// cause; Code holds the driver's error code (SQLSTATE, MySQL error number)
// when one is known.
type Error struct {
	Kind Kind
	Op   string
	SQL  string
	Code string
	Err  error
}

// stage tells the translator where in the call a failure happened.
type stage uint8

const (
	stageAcquire stage = iota
	stageBegin
	stagePrepare
	stageExec
	stageMap
	stageEnd
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Binding:
		return "binding"
	case Execution:
		return "execution"
	case Mapping:
		return "mapping"
	case ConnectionUnavailable:
		return "connection unavailable"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sqlt: ")
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Code != "" {
		b.WriteString(" (code ")
		b.WriteString(e.Code)
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBinding:
		return e.Kind == Binding
	case ErrExecution:
		return e.Kind == Execution
	case ErrMapping:
		return e.Kind == Mapping
	case ErrConnectionUnavailable:
		return e.Kind == ConnectionUnavailable
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// mappingError marks a row mapper failure so it keeps the Mapping kind.
func mappingError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: Mapping, Err: err}
}

// translate converts a low-level failure into an *Error. Failures that are
// already *Error pass through untouched.
func translate(st stage, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch st {
	case stageAcquire:
		return &Error{Kind: ConnectionUnavailable, Err: err}
	case stageMap:
		return &Error{Kind: Mapping, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Kind: pgKind(st, pgErr.Code), Code: pgErr.Code, Err: err}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &Error{Kind: mysqlKind(myErr.Number), Code: strconv.Itoa(int(myErr.Number)), Err: err}
	}

	if isArgumentError(err) {
		return &Error{Kind: Binding, Err: err}
	}
	if isConnError(err) {
		if st == stageBegin || st == stagePrepare {
			return &Error{Kind: ConnectionUnavailable, Err: err}
		}
		return &Error{Kind: Execution, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: Execution, Err: err}
	}

	if st == stagePrepare {
		return &Error{Kind: Binding, Err: err}
	}
	return &Error{Kind: Execution, Err: err}
}

// pgKind maps a PostgreSQL SQLSTATE to a kind.
func pgKind(st stage, code string) Kind {
	switch code {
	case "42601", // syntax_error
		"42P02", // undefined_parameter
		"08P01": // protocol_violation, e.g. bind message parameter count
		return Binding
	}
	if strings.HasPrefix(code, "08") && (st == stageBegin || st == stagePrepare) {
		return ConnectionUnavailable
	}
	return Execution
}

// mysqlKind maps a MySQL server error number to a kind.
func mysqlKind(number uint16) Kind {
	switch number {
	case 1064, // ER_PARSE_ERROR
		1210: // ER_WRONG_ARGUMENTS
		return Binding
	}
	return Execution
}

// isArgumentError reports database/sql's own argument validation failures,
// which carry no exported type.
func isArgumentError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "sql: expected ") || strings.Contains(msg, "sql: converting argument")
}

// isConnError reports a broken or already returned connection.
func isConnError(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn)
}
