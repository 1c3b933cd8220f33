package postgres

import (
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrConnectionFailure = "08006"
	pgErrConnectionRefused = "08001"
	pgErrSyntaxError       = "42601"
	pgErrUndefinedTable    = "42P01"
	pgErrUndefinedColumn   = "42703"
	pgErrInvalidPassword   = "28P01"
	pgErrInvalidAuth       = "28000"
	pgErrUniqueViolation   = "23505"
	pgErrForeignKey        = "23503"
	pgErrQueryCanceled     = "57014"
	pgErrDivisionByZero    = "22012"
)

// nativeCodes maps SQLSTATEs to the native codes callers already handle.
var nativeCodes = map[string]int{
	pgErrConnectionFailure: 3113,
	pgErrConnectionRefused: 12541,
	pgErrSyntaxError:       900,
	pgErrUndefinedTable:    942,
	pgErrUndefinedColumn:   904,
	pgErrInvalidPassword:   1017,
	pgErrInvalidAuth:       1017,
	pgErrUniqueViolation:   1,
	pgErrForeignKey:        2291,
	pgErrQueryCanceled:     1013,
	pgErrDivisionByZero:    1476,
}

// mapError converts a pgx or lib/pq error into a native code and message.
func mapError(err error) (int, string, bool) {
	if err == nil {
		return 0, "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return codeOf(pgErr.Code), pgErr.Error(), true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return codeOf(string(pqErr.Code)), pqErr.Error(), true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return nativeCodes[pgErrConnectionRefused], connErr.Error(), true
	}

	return 0, "", false
}

// codeOf returns the native code of a SQLSTATE. States without an equivalent
// are read as base-36 numbers so that each one keeps a distinct code.
func codeOf(sqlstate string) int {
	if code, ok := nativeCodes[sqlstate]; ok {
		return code
	}
	n, err := strconv.ParseInt(sqlstate, 36, 64)
	if err != nil {
		return 0
	}
	return int(n)
}
