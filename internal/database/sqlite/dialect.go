// Package sqlite provides the SQLite dialect over mattn/go-sqlite3.
//
// A source is a database file path or a "file:" URI. Logon credentials are
// accepted and ignored.
package sqlite

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/koustreak/ocisql/internal/database/sqlnative"
	"github.com/koustreak/ocisql/internal/native"
)

// busyTimeout is applied to plain file paths, in milliseconds.
const busyTimeout = "5000"

const tablesQuery = `
	SELECT name
	FROM sqlite_master
	WHERE type = 'table'
	  AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

// Dialect returns the SQLite dialect.
func Dialect() sqlnative.Dialect {
	return sqlnative.Dialect{
		Name:       "sqlite",
		DriverName: "sqlite3",
		DSN:        buildDSN,
		MapError:   mapError,
		TypeTag:    typeTag,
		Tables:     tablesQuery,
	}
}

func buildDSN(source, _, _ string) (string, error) {
	if strings.HasPrefix(source, "file:") || strings.Contains(source, "?") || source == ":memory:" {
		return source, nil
	}
	return "file:" + source + "?_busy_timeout=" + busyTimeout, nil
}

// mapError converts a go-sqlite3 error into a native code and message.
// SQLite reports most statement errors with the generic SQLITE_ERROR code,
// so those are told apart by message.
func mapError(err error) (int, string, bool) {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return 0, "", false
	}
	msg := sqlErr.Error()

	switch {
	case sqlErr.Code == sqlite3.ErrInterrupt:
		return 1013, msg, true
	case sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique,
		sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return 1, msg, true
	case sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return 2291, msg, true
	case sqlErr.Code == sqlite3.ErrCantOpen:
		return 12154, msg, true
	case strings.Contains(msg, "no such table"):
		return 942, msg, true
	case strings.Contains(msg, "no such column"):
		return 904, msg, true
	case strings.Contains(msg, "syntax error"), strings.Contains(msg, "incomplete input"):
		return 900, msg, true
	}
	return int(sqlErr.ExtendedCode), msg, true
}

func typeTag(name string) (native.TypeTag, bool) {
	switch name {
	case "JSON":
		return native.TypeCLOB, true
	case "UUID":
		return native.TypeVCS, true
	}
	return 0, false
}
