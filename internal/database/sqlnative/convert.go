package sqlnative

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/koustreak/ocisql/internal/native"
)

// genericTypes maps common database type names to native tags. Dialects
// add their own names through Dialect.TypeTag.
var genericTypes = map[string]native.TypeTag{
	"CHAR":      native.TypeAFC,
	"CHARACTER": native.TypeAFC,
	"NCHAR":     native.TypeAFC,
	"BPCHAR":    native.TypeAFC,
	"VARCHAR":   native.TypeVCS,
	"VARCHAR2":  native.TypeVCS,
	"NVARCHAR":  native.TypeVCS,
	"NVARCHAR2": native.TypeVCS,
	"STRING":    native.TypeVCS,

	"TEXT":       native.TypeCLOB,
	"CLOB":       native.TypeCLOB,
	"NCLOB":      native.TypeCLOB,
	"TINYTEXT":   native.TypeCLOB,
	"MEDIUMTEXT": native.TypeCLOB,
	"LONGTEXT":   native.TypeCLOB,

	"INT":       native.TypeINT,
	"INTEGER":   native.TypeINT,
	"TINYINT":   native.TypeINT,
	"SMALLINT":  native.TypeINT,
	"MEDIUMINT": native.TypeINT,
	"BIGINT":    native.TypeINT,
	"INT2":      native.TypeINT,
	"INT4":      native.TypeINT,
	"INT8":      native.TypeINT,
	"BOOL":      native.TypeINT,
	"BOOLEAN":   native.TypeINT,

	"UNSIGNED TINYINT":   native.TypeUIN,
	"UNSIGNED SMALLINT":  native.TypeUIN,
	"UNSIGNED MEDIUMINT": native.TypeUIN,
	"UNSIGNED INT":       native.TypeUIN,
	"UNSIGNED BIGINT":    native.TypeUIN,

	"NUMBER":  native.TypeNUM,
	"NUMERIC": native.TypeNUM,
	"DECIMAL": native.TypeNUM,

	"REAL":             native.TypeFLT,
	"FLOAT":            native.TypeFLT,
	"FLOAT4":           native.TypeFLT,
	"FLOAT8":           native.TypeFLT,
	"DOUBLE":           native.TypeFLT,
	"DOUBLE PRECISION": native.TypeFLT,

	"DATE":        native.TypeDAT,
	"DATETIME":    native.TypeTimestamp,
	"TIMESTAMP":   native.TypeTimestamp,
	"TIMESTAMPTZ": native.TypeTimestampTZ,

	"BLOB":      native.TypeBLOB,
	"BYTEA":     native.TypeBLOB,
	"BINARY":    native.TypeBLOB,
	"VARBINARY": native.TypeBLOB,
	"LONGBLOB":  native.TypeBLOB,
}

// normalizeTypeName upper-cases name and drops a "(n,m)" suffix.
func normalizeTypeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

func genericTag(name string) (native.TypeTag, bool) {
	tag, ok := genericTypes[name]
	return tag, ok
}

// tagOfValue infers a tag from a scanned value. database/sql hands back
// int64, uint64, float64, bool, []byte, string and time.Time; NULL and
// anything else is text.
func tagOfValue(v any) native.TypeTag {
	switch v.(type) {
	case int64, bool:
		return native.TypeINT
	case uint64:
		return native.TypeUIN
	case float64:
		return native.TypeFLT
	case time.Time:
		return native.TypeTimestamp
	default:
		return native.TypeVCS
	}
}

// classify derives the statement kind from the leading keyword.
func classify(sql string) native.StmtKind {
	switch firstKeyword(sql) {
	case "SELECT", "WITH", "VALUES", "SHOW", "EXPLAIN", "DESCRIBE", "PRAGMA", "TABLE":
		return native.StmtSelect
	case "UPDATE", "MERGE":
		return native.StmtUpdate
	case "DELETE", "TRUNCATE":
		return native.StmtDelete
	case "INSERT", "REPLACE", "UPSERT":
		return native.StmtInsert
	case "CREATE":
		return native.StmtCreate
	case "DROP":
		return native.StmtDrop
	case "ALTER", "RENAME":
		return native.StmtAlter
	case "BEGIN":
		return native.StmtBegin
	case "DECLARE":
		return native.StmtDeclare
	}
	return native.StmtUnknown
}

// firstKeyword returns the first word of sql, skipping whitespace, comments
// and opening parentheses.
func firstKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !unicode.IsLetter(r) && r != '_'
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

// write converts v into the define target. truncated reports text that did
// not fit the buffer.
func (l *Library) write(d define, v any) (truncated bool, err error) {
	if v == nil {
		*d.ind = -1
		return false, nil
	}
	*d.ind = 0

	switch dest := d.dest.(type) {
	case *[]byte:
		s := toText(v)
		buf := *dest
		if len(buf) == 0 {
			return len(s) > 0, nil
		}
		n := copy(buf[:len(buf)-1], s)
		buf[n] = 0
		return n < len(s), nil

	case *float64:
		n, err := toNumber(v)
		if err != nil {
			return false, err
		}
		*dest = n.Float64()

	case *int64:
		n, err := toNumber(v)
		if err != nil {
			return false, err
		}
		i, ok := n.Int64()
		if !ok {
			return false, fmt.Errorf("%s does not fit int64", n)
		}
		*dest = i

	case *uint64:
		n, err := toNumber(v)
		if err != nil {
			return false, err
		}
		u, ok := n.Uint64()
		if !ok {
			return false, fmt.Errorf("%s does not fit uint64", n)
		}
		*dest = u

	case *native.Number:
		n, err := toNumber(v)
		if err != nil {
			return false, err
		}
		*dest = n

	case *native.Descriptor:
		desc, ok := l.descs.Get(uint64(*dest))
		if !ok {
			return false, fmt.Errorf("invalid descriptor %d", *dest)
		}
		switch desc.kind {
		case native.DescTimestamp:
			t, err := toTime(v)
			if err != nil {
				return false, err
			}
			desc.t = t
		case native.DescLob:
			desc.text = toText(v)
		}

	default:
		return false, fmt.Errorf("unsupported define target %T", d.dest)
	}
	return false, nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func toNumber(v any) (native.Number, error) {
	switch x := v.(type) {
	case int64:
		return native.NumberFromInt64(x), nil
	case uint64:
		return native.NumberFromUint64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return native.Number{}, fmt.Errorf("%v is not a number", x)
		}
		return native.NumberFromFloat64(x), nil
	case bool:
		if x {
			return native.NumberFromInt64(1), nil
		}
		return native.NumberFromInt64(0), nil
	case []byte:
		return native.ParseNumber(strings.TrimSpace(string(x)))
	case string:
		return native.ParseNumber(strings.TrimSpace(x))
	}
	return native.Number{}, fmt.Errorf("cannot convert %T to a number", v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func toTime(v any) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to a timestamp", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}
