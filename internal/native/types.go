package native

import "time"

// TypeTag is the native external data type of a result column.
type TypeTag int

const (
	TypeCHR          TypeTag = 1   // VARCHAR2
	TypeNUM          TypeTag = 2   // NUMBER
	TypeINT          TypeTag = 3   // signed integer
	TypeFLT          TypeTag = 4   // floating point
	TypeSTR          TypeTag = 5   // null-terminated string
	TypeVNU          TypeTag = 6   // NUMBER with length byte
	TypeVCS          TypeTag = 9   // variable character
	TypeDAT          TypeTag = 12  // DATE
	TypeUIN          TypeTag = 68  // unsigned integer
	TypeAFC          TypeTag = 96  // fixed CHAR
	TypeAVC          TypeTag = 97  // CHARZ
	TypeCLOB         TypeTag = 112 // character LOB
	TypeBLOB         TypeTag = 113 // binary LOB
	TypeTimestamp    TypeTag = 187
	TypeTimestampTZ  TypeTag = 188
	TypeTimestampLTZ TypeTag = 232
)

// StmtKind is the statement type reported after prepare.
type StmtKind int

const (
	StmtUnknown StmtKind = iota
	StmtSelect
	StmtUpdate
	StmtDelete
	StmtInsert
	StmtCreate
	StmtDrop
	StmtAlter
	StmtBegin
	StmtDeclare
)

// ExecMode controls transaction handling of Execute.
type ExecMode int

const (
	ExecDefault ExecMode = iota
	ExecCommitOnSuccess
)

// DescriptorKind selects what NewDescriptor allocates.
type DescriptorKind int

const (
	DescTimestamp DescriptorKind = iota + 1
	DescLob
)

// CharsetUTF8 is the native charset id for UTF-8 text defines.
const CharsetUTF8 uint16 = 871

// Opaque handles. The zero value of each is "no handle".
type (
	Env         uint64
	ErrorHandle uint64
	Server      uint64
	Session     uint64
	Statement   uint64
	Descriptor  uint64
)

// Indicator is the null flag written by Fetch: -1 means NULL.
type Indicator int16

// IsNull reports whether the fetched value was NULL.
func (i Indicator) IsNull() bool { return i == -1 }

// Param describes one select-list item.
type Param struct {
	Name string
	Type TypeTag
	Size int // data size in bytes
}

// DateTime is the broken-down content of a timestamp descriptor.
type DateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	Nanos  int // fractional second in nanoseconds
}

// DateTimeOf splits t into descriptor fields.
func DateTimeOf(t time.Time) DateTime {
	return DateTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
		Nanos:  t.Nanosecond(),
	}
}
