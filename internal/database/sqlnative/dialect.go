package sqlnative

import (
	"time"

	"github.com/koustreak/ocisql/internal/native"
)

// Dialect adapts one database/sql driver to the native surface.
type Dialect struct {
	// Name identifies the dialect in logs and configuration.
	Name string

	// DriverName is the name the driver registered with database/sql.
	DriverName string

	// DSN builds the driver data source name from the logon credentials.
	DSN func(source, user, password string) (string, error)

	// MapError translates a driver error into a native error code and
	// message. ok is false for errors the dialect does not recognize.
	MapError func(err error) (code int, message string, ok bool)

	// TypeTag maps a database type name, as reported by
	// sql.ColumnType.DatabaseTypeName, to a native type tag. It is consulted
	// before the generic mapping; nil means generic mapping only.
	TypeTag func(dbType string) (native.TypeTag, bool)

	// Tables is a query returning the names of the user's tables in one
	// column, used by catalog listings.
	Tables string

	// BufferRows reads each result set to the end when the query runs, so
	// the connection is free for other statements while cursors are open.
	// Drivers that cannot interleave statements on one connection need it.
	BufferRows bool
}

// Options tunes the connections a Library opens.
type Options struct {
	// ConnectTimeout bounds the ping of a new session.
	ConnectTimeout time.Duration

	// ConnMaxLifetime and ConnMaxIdleTime are applied to every sqlx.DB.
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// TextSize is the max size reported for text columns of unknown length.
	TextSize int
}

// DefaultOptions returns the settings used when New is given none.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		TextSize:        DefaultTextSize,
	}
}

// DefaultTextSize is the text buffer size for columns without a driver length.
const DefaultTextSize = 4000
