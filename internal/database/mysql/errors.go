package mysql

import (
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
	errBadFieldError   = 1054
	errAccessDenied    = 1045
	errConnRefused     = 2003
	errUnknownDatabase = 1049
	errNoSuchTable     = 1146
	errParseError      = 1064
	errQueryComplete   = 1317
	errDivisionByZero  = 1365
)

// nativeCodes maps MySQL error numbers to the native codes callers handle.
var nativeCodes = map[uint16]int{
	errDuplicateEntry:  1,
	errNoReferencedRow: 2291,
	errBadFieldError:   904,
	errAccessDenied:    1017,
	errConnRefused:     12541,
	errUnknownDatabase: 12514,
	errNoSuchTable:     942,
	errParseError:      900,
	errQueryComplete:   1013,
	errDivisionByZero:  1476,
}

// mapError converts a MySQL driver error into a native code and message.
// Numbers without an equivalent are passed through unchanged.
func mapError(err error) (int, string, bool) {
	if err == nil {
		return 0, "", false
	}

	var mysqlErr *gomysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return 0, "", false
	}
	if code, ok := nativeCodes[mysqlErr.Number]; ok {
		return code, mysqlErr.Error(), true
	}
	return int(mysqlErr.Number), mysqlErr.Error(), true
}
