package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

// Class groups database failures by how the caller should react.
type Class string

const (
	ClassNone          Class = ""
	ClassConnection    Class = "connection"
	ClassAuth          Class = "auth"
	ClassTimeout       Class = "timeout"
	ClassContention    Class = "contention"
	ClassPoolExhausted Class = "pool_exhausted"
	ClassCanceled      Class = "canceled"
	ClassQuery         Class = "query"
	ClassInvalid       Class = "invalid"
)

var suggestions = map[Class]string{
	ClassConnection:    "check that the database is reachable and accepting connections",
	ClassAuth:          "verify the database credentials in the storage configuration",
	ClassTimeout:       "the database is slow or overloaded, retry later or raise storage.executor.query_timeout",
	ClassContention:    "the row is locked by a concurrent transaction, retry the request",
	ClassPoolExhausted: "all database connections are busy, retry later or raise storage.pool.max_conns",
	ClassCanceled:      "the request was canceled before the database answered",
	ClassQuery:         "the statement was rejected by the database, inspect its parameters",
	ClassInvalid:       "the statement could not be built, this is a programming error",
}

// Suggestion returns operator guidance for the class.
func (c Class) Suggestion() string {
	return suggestions[c]
}

// Retryable reports whether another attempt may succeed.
func (c Class) Retryable() bool {
	switch c {
	case ClassConnection, ClassAuth, ClassTimeout, ClassContention:
		return true
	default:
		return false
	}
}

// resetsPool reports whether the pool should be recreated before the next attempt.
func (c Class) resetsPool() bool {
	return c == ClassConnection || c == ClassAuth
}

// Classify maps a driver error to a Class and the engine error code, if any.
func Classify(err error) (Class, string) {
	if err == nil {
		return ClassNone, ""
	}

	switch {
	case errors.Is(err, storage.ErrInvalidQuery):
		return ClassInvalid, ""
	case errors.Is(err, pool.ErrPoolExhausted):
		return ClassPoolExhausted, ""
	case errors.Is(err, pool.ErrPoolClosed), errors.Is(err, context.Canceled):
		return ClassCanceled, ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code), pgErr.Code
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr.Number), strconv.Itoa(int(myErr.Number))
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return ClassConnection, ""
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return ClassTimeout, ""
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ClassConnection, ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout, ""
		}

		return ClassConnection, ""
	}

	return ClassQuery, ""
}

func classifyPostgres(code string) Class {
	switch {
	case strings.HasPrefix(code, "08"):
		return ClassConnection
	case strings.HasPrefix(code, "28"):
		return ClassAuth
	}

	switch code {
	// admin_shutdown, crash_shutdown, cannot_connect_now, too_many_connections
	case "57P01", "57P02", "57P03", "53300":
		return ClassConnection
	// query_canceled, raised by statement_timeout
	case "57014":
		return ClassTimeout
	// serialization_failure, deadlock_detected, lock_not_available
	case "40001", "40P01", "55P03":
		return ClassContention
	default:
		return ClassQuery
	}
}

func classifyMySQL(number uint16) Class {
	switch number {
	// access denied
	case 1044, 1045, 1698:
		return ClassAuth
	// too many connections, server gone away, lost connection
	case 1040, 1203, 2002, 2003, 2006, 2013:
		return ClassConnection
	// lock wait timeout, deadlock
	case 1205, 1213:
		return ClassContention
	// max_execution_time exceeded
	case 3024:
		return ClassTimeout
	default:
		return ClassQuery
	}
}
