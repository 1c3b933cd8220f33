// Package mysql provides the MySQL dialect over go-sql-driver/mysql.
//
// A source is either "host[:port][/dbname]" or a full driver DSN containing
// "@" (e.g. "tcp(db:3306)/app?charset=utf8mb4" prefixed by "user@"). Logon
// credentials override any found in the DSN.
package mysql

import (
	"fmt"
	"net"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/ocisql/internal/database/sqlnative"
	"github.com/koustreak/ocisql/internal/native"
)

const defaultPort = "3306"

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = DATABASE()
	  AND table_type   = 'BASE TABLE'
	ORDER BY table_name`

// Dialect returns the MySQL dialect.
func Dialect() sqlnative.Dialect {
	return sqlnative.Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		DSN:        buildDSN,
		MapError:   mapError,
		TypeTag:    typeTag,
		Tables:     tablesQuery,
		BufferRows: true,
	}
}

func buildDSN(source, user, password string) (string, error) {
	if strings.Contains(source, "@") {
		cfg, err := gomysql.ParseDSN(source)
		if err != nil {
			return "", fmt.Errorf("invalid mysql source: %w", err)
		}
		if user != "" {
			cfg.User = user
			cfg.Passwd = password
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	addr, dbname, _ := strings.Cut(source, "/")
	if addr == "" {
		return "", fmt.Errorf("invalid mysql source %q", source)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}

	cfg := gomysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func typeTag(name string) (native.TypeTag, bool) {
	switch name {
	case "YEAR":
		return native.TypeINT, true
	case "JSON":
		return native.TypeCLOB, true
	case "TINYBLOB", "MEDIUMBLOB":
		return native.TypeBLOB, true
	case "ENUM", "SET", "TIME", "BIT":
		return native.TypeVCS, true
	}
	return 0, false
}
