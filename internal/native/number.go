package native

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Number is the native arbitrary-precision decimal storage. The zero value is 0.
type Number struct {
	d decimal.Decimal
}

var (
	minInt64  = decimal.NewFromInt(math.MinInt64)
	maxInt64  = decimal.NewFromInt(math.MaxInt64)
	maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// NumberFromInt64 returns v as a Number.
func NumberFromInt64(v int64) Number { return Number{d: decimal.NewFromInt(v)} }

// NumberFromUint64 returns v as a Number.
func NumberFromUint64(v uint64) Number {
	return Number{d: decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)}
}

// NumberFromFloat64 returns v as a Number.
func NumberFromFloat64(v float64) Number { return Number{d: decimal.NewFromFloat(v)} }

// ParseNumber parses a decimal literal such as "-12.50" or "1e3".
func ParseNumber(s string) (Number, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}, err
	}
	return Number{d: d}, nil
}

// Reset sets n to zero.
func (n *Number) Reset() { n.d = decimal.Zero }

// IsInt reports whether n has no fractional part.
func (n Number) IsInt() bool { return n.d.IsInteger() }

// Sign returns -1, 0 or +1.
func (n Number) Sign() int { return n.d.Sign() }

// Int64 converts an integral n; ok is false when n is fractional or out of range.
func (n Number) Int64() (v int64, ok bool) {
	if !n.d.IsInteger() || n.d.LessThan(minInt64) || n.d.GreaterThan(maxInt64) {
		return 0, false
	}
	return n.d.IntPart(), true
}

// Uint64 converts an integral non-negative n; ok is false otherwise.
func (n Number) Uint64() (v uint64, ok bool) {
	if !n.d.IsInteger() || n.d.Sign() < 0 || n.d.GreaterThan(maxUint64) {
		return 0, false
	}
	return n.d.BigInt().Uint64(), true
}

// Float64 returns the nearest float64.
func (n Number) Float64() float64 { return n.d.InexactFloat64() }

func (n Number) String() string { return n.d.String() }
