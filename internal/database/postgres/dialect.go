// Package postgres provides the PostgreSQL dialects: pgx through its
// database/sql adapter, and lib/pq.
//
// A source is either a URL ("postgres://host:5432/db?sslmode=require"), a
// keyword string ("host=db dbname=app"), or the short form "host[:port][/dbname]".
package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" driver
	_ "github.com/lib/pq"              // register "postgres" driver

	"github.com/koustreak/ocisql/internal/database/sqlnative"
	"github.com/koustreak/ocisql/internal/native"
)

const (
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = current_schema()
	  AND table_type = 'BASE TABLE'
	ORDER BY table_name`

// Dialect returns the pgx dialect.
func Dialect() sqlnative.Dialect {
	return sqlnative.Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		DSN:        buildDSN,
		MapError:   mapError,
		TypeTag:    typeTag,
		Tables:     tablesQuery,
		BufferRows: true,
	}
}

// PQ returns the lib/pq dialect.
func PQ() sqlnative.Dialect {
	d := Dialect()
	d.Name = "pq"
	d.DriverName = "postgres"
	return d
}

// buildDSN constructs the postgres connection string. The result is checked
// with pgx.ParseConfig so that malformed sources fail at logon.
func buildDSN(source, user, password string) (string, error) {
	var dsn string
	switch {
	case strings.HasPrefix(source, "postgres://"), strings.HasPrefix(source, "postgresql://"):
		u, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("invalid postgres source: %w", err)
		}
		if user != "" {
			u.User = url.UserPassword(user, password)
		}
		dsn = u.String()

	case strings.Contains(source, "="):
		dsn = source
		if user != "" {
			dsn += " user=" + quote(user)
		}
		if password != "" {
			dsn += " password=" + quote(password)
		}

	default:
		host, port, dbname, err := splitShort(source)
		if err != nil {
			return "", err
		}
		dsn = fmt.Sprintf("host=%s port=%d sslmode=%s", quote(host), port, defaultSSLMode)
		if dbname != "" {
			dsn += " dbname=" + quote(dbname)
		}
		if user != "" {
			dsn += " user=" + quote(user)
		}
		if password != "" {
			dsn += " password=" + quote(password)
		}
	}

	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("invalid postgres source: %w", err)
	}
	return dsn, nil
}

// splitShort parses "host[:port][/dbname]".
func splitShort(source string) (host string, port int, dbname string, err error) {
	addr := source
	if i := strings.IndexByte(source, '/'); i >= 0 {
		addr, dbname = source[:i], source[i+1:]
	}
	port = defaultPort
	host = addr
	if h, p, splitErr := net.SplitHostPort(addr); splitErr == nil {
		host = h
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, "", fmt.Errorf("invalid postgres port %q", p)
		}
	}
	if host == "" {
		return "", 0, "", fmt.Errorf("invalid postgres source %q", source)
	}
	return host, port, dbname, nil
}

// quote escapes a keyword/value connection string value.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func typeTag(name string) (native.TypeTag, bool) {
	switch name {
	case "NAME", "UUID", "INTERVAL", "INET", "CIDR", "MACADDR", "CITEXT":
		return native.TypeVCS, true
	case "JSON", "JSONB", "XML":
		return native.TypeCLOB, true
	case "OID", "XID":
		return native.TypeUIN, true
	case "TIMETZ", "TIME":
		return native.TypeVCS, true
	case "_TEXT", "_INT4", "_INT8", "_VARCHAR":
		return native.TypeVCS, true
	}
	return 0, false
}
