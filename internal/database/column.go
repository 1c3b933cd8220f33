package database

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/native"
)

// maxColumnName bounds column names, in bytes.
const maxColumnName = 255

// DateTime is the decoded value of DATE and TIMESTAMP columns.
type DateTime struct {
	Year     int `json:"year"`
	Month    int `json:"month"`
	Day      int `json:"day"`
	Hour     int `json:"hour"`
	Minute   int `json:"min"`
	Second   int `json:"sec"`
	Fraction int `json:"fsec"` // nanoseconds
}

// ColumnDescription is the per-name entry of Cursor.GetColumnDescriptions.
type ColumnDescription struct {
	Type    string `json:"type"`
	MaxSize int    `json:"maxsize"`
}

// Column is one result field of a Cursor with its fetch buffer.
type Column struct {
	pos     int
	tag     native.TypeTag
	name    string
	maxSize int
	ind     native.Indicator
	buf     buffer
}

// buffer is the fetch storage of a column. Exactly one variant is chosen from
// the type tag when the column is allocated and it never changes afterwards.
type buffer interface {
	isBuffer()
}

type (
	textBuffer   struct{ data []byte }
	floatBuffer  struct{ v float64 }
	intBuffer    struct{ v int64 }
	uintBuffer   struct{ v uint64 }
	numberBuffer struct{ v native.Number }
	dateBuffer   struct{ desc native.Descriptor }
	lobBuffer    struct{ desc native.Descriptor }
)

func (*textBuffer) isBuffer()   {}
func (*floatBuffer) isBuffer()  {}
func (*intBuffer) isBuffer()    {}
func (*uintBuffer) isBuffer()   {}
func (*numberBuffer) isBuffer() {}
func (*dateBuffer) isBuffer()   {}
func (*lobBuffer) isBuffer()    {}

// Name returns the lower-cased column name.
func (c *Column) Name() string { return c.name }

// Tag returns the native type tag.
func (c *Column) Tag() native.TypeTag { return c.tag }

// MaxSize returns the text buffer size for character columns, 0 otherwise.
func (c *Column) MaxSize() int { return c.maxSize }

// allocColumn describes the field at pos and binds a buffer for it. On error
// the returned column (possibly nil) holds whatever was allocated so far and
// must be released by the caller.
func allocColumn(lib native.Library, env native.Env, stmt native.Statement, errh native.ErrorHandle, pos int) (*Column, error) {
	p, st := lib.Describe(stmt, errh, pos)
	if err := check(lib, st, errh); err != nil {
		return nil, err
	}

	col := &Column{pos: pos, tag: p.Type, name: columnName(p.Name)}

	switch p.Type {
	case native.TypeCHR, native.TypeSTR, native.TypeVCS, native.TypeAFC, native.TypeAVC:
		col.maxSize = p.Size
		b := &textBuffer{data: make([]byte, p.Size+1)}
		col.buf = b
		st = lib.DefineByPos(stmt, errh, pos, &b.data, &col.ind, native.TypeSTR)
		if err := check(lib, st, errh); err != nil {
			return col, err
		}
		st = lib.SetDefineCharset(stmt, errh, pos, native.CharsetUTF8)

	case native.TypeFLT:
		b := &floatBuffer{}
		col.buf = b
		st = lib.DefineByPos(stmt, errh, pos, &b.v, &col.ind, native.TypeFLT)

	case native.TypeINT:
		b := &intBuffer{}
		col.buf = b
		st = lib.DefineByPos(stmt, errh, pos, &b.v, &col.ind, native.TypeINT)

	case native.TypeUIN:
		b := &uintBuffer{}
		col.buf = b
		st = lib.DefineByPos(stmt, errh, pos, &b.v, &col.ind, native.TypeUIN)

	case native.TypeNUM, native.TypeVNU:
		b := &numberBuffer{}
		b.v.Reset()
		col.buf = b
		st = lib.DefineByPos(stmt, errh, pos, &b.v, &col.ind, native.TypeVNU)

	case native.TypeDAT, native.TypeTimestamp, native.TypeTimestampTZ, native.TypeTimestampLTZ:
		b := &dateBuffer{}
		col.buf = b
		if b.desc, st = lib.NewDescriptor(env, native.DescTimestamp); !st.OK() {
			return col, alloc(st, "timestamp descriptor")
		}
		st = lib.DefineByPos(stmt, errh, pos, &b.desc, &col.ind, native.TypeTimestamp)

	case native.TypeCLOB:
		b := &lobBuffer{}
		col.buf = b
		if b.desc, st = lib.NewDescriptor(env, native.DescLob); !st.OK() {
			return col, alloc(st, "lob descriptor")
		}
		st = lib.DefineByPos(stmt, errh, pos, &b.desc, &col.ind, native.TypeCLOB)

	default:
		return col, errs.UnsupportedType(int(p.Type), pos)
	}

	if err := check(lib, st, errh); err != nil {
		return col, err
	}
	return col, nil
}

// release frees native resources owned by the column buffer.
func (c *Column) release(lib native.Library) {
	switch b := c.buf.(type) {
	case *textBuffer:
		b.data = nil
	case *dateBuffer:
		if b.desc != 0 {
			lib.FreeDescriptor(b.desc, native.DescTimestamp)
			b.desc = 0
		}
	case *lobBuffer:
		if b.desc != 0 {
			lib.FreeDescriptor(b.desc, native.DescLob)
			b.desc = 0
		}
	}
}

// decoder carries what decode needs from the owning cursor.
type decoder struct {
	lib      native.Library
	env      native.Env
	sess     native.Session
	errh     native.ErrorHandle
	exactInt bool
}

// decode converts the fetched buffer content into a host value.
//
// Without int64 support every integer is widened to float64, which loses
// precision beyond 2^53.
func (d *decoder) decode(ctx context.Context, c *Column) (any, error) {
	if c.ind.IsNull() {
		return nil, nil
	}

	switch b := c.buf.(type) {
	case *textBuffer:
		if i := bytes.IndexByte(b.data, 0); i >= 0 {
			return string(b.data[:i]), nil
		}
		return string(b.data), nil

	case *floatBuffer:
		return b.v, nil

	case *intBuffer:
		if d.exactInt {
			return b.v, nil
		}
		return float64(b.v), nil

	case *uintBuffer:
		if d.exactInt {
			return b.v, nil
		}
		return float64(b.v), nil

	case *numberBuffer:
		return d.decodeNumber(b.v), nil

	case *dateBuffer:
		dt, st := d.lib.DateTimeGet(d.env, d.errh, b.desc)
		if err := check(d.lib, st, d.errh); err != nil {
			return nil, err
		}
		return DateTime{
			Year:     dt.Year,
			Month:    dt.Month,
			Day:      dt.Day,
			Hour:     dt.Hour,
			Minute:   dt.Minute,
			Second:   dt.Second,
			Fraction: dt.Nanos,
		}, nil

	case *lobBuffer:
		return d.readLob(ctx, b.desc)
	}

	return nil, errs.Database(0, "unexpected error")
}

// decodeNumber picks the narrowest exact representation: non-negative
// integers become uint64, negative integers int64, everything else float64.
// Integers outside the 64-bit range fall back to float64.
func (d *decoder) decodeNumber(n native.Number) any {
	if d.exactInt && n.IsInt() {
		if n.Sign() >= 0 {
			if v, ok := n.Uint64(); ok {
				return v
			}
		} else if v, ok := n.Int64(); ok {
			return v
		}
	}
	return n.Float64()
}

// readLob materializes the whole LOB in one read.
func (d *decoder) readLob(ctx context.Context, desc native.Descriptor) (any, error) {
	n, st := d.lib.LobLength(ctx, d.sess, d.errh, desc)
	if err := check(d.lib, st, d.errh); err != nil {
		return nil, err
	}
	if n == 0 {
		return "", nil
	}

	buf := make([]byte, n)
	amount, st := d.lib.LobRead(ctx, d.sess, d.errh, desc, buf)
	if err := check(d.lib, st, d.errh); err != nil {
		return nil, err
	}
	return string(buf[:amount]), nil
}

// typeName returns the driver-level type name of the column.
func (c *Column) typeName(int64Mode bool) string {
	switch c.tag {
	case native.TypeCHR, native.TypeSTR, native.TypeVCS, native.TypeAFC, native.TypeAVC, native.TypeCLOB:
		return "string"
	case native.TypeFLT, native.TypeINT, native.TypeUIN, native.TypeNUM, native.TypeVNU:
		if !int64Mode {
			return "number"
		}
		switch c.tag {
		case native.TypeFLT:
			return "double"
		case native.TypeINT:
			return "integer"
		case native.TypeUIN:
			return "unsigned integer"
		}
		return "number"
	case native.TypeDAT:
		return "datetime"
	case native.TypeTimestamp, native.TypeTimestampTZ, native.TypeTimestampLTZ:
		return "timestamp"
	default:
		return "unknown"
	}
}

// columnName lower-cases name and bounds it to maxColumnName bytes.
func columnName(name string) string {
	name = strings.ToLower(name)
	if len(name) <= maxColumnName {
		return name
	}
	cut := maxColumnName
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
