package native

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "OCI_SUCCESS", Success.String())
	assert.Equal(t, "OCI_STILL_EXECUTING", StillExecuting.String())
	assert.Equal(t, "OCI_NO_DATA", NoData.String())
	assert.Equal(t, "CODE=42", Status(42).String())

	assert.True(t, Success.OK())
	assert.True(t, SuccessWithInfo.OK())
	assert.False(t, NoData.OK())
	assert.False(t, StillExecuting.OK())
}

func TestNumber_Integers(t *testing.T) {
	n := NumberFromInt64(math.MinInt64)
	assert.True(t, n.IsInt())
	assert.Equal(t, -1, n.Sign())
	v, ok := n.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), v)
	_, ok = n.Uint64()
	assert.False(t, ok)

	u := NumberFromUint64(math.MaxUint64)
	assert.True(t, u.IsInt())
	uv, ok := u.Uint64()
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), uv)
	_, ok = u.Int64()
	assert.False(t, ok)
}

func TestNumber_Fractional(t *testing.T) {
	n, err := ParseNumber("-12.50")
	require.NoError(t, err)
	assert.False(t, n.IsInt())
	assert.Equal(t, -12.5, n.Float64())
	_, ok := n.Int64()
	assert.False(t, ok)

	whole, err := ParseNumber("1e3")
	require.NoError(t, err)
	assert.True(t, whole.IsInt())
	v, ok := whole.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(1000), v)

	_, err = ParseNumber("abc")
	assert.Error(t, err)
}

func TestNumber_Reset(t *testing.T) {
	n := NumberFromFloat64(3.25)
	n.Reset()
	assert.Equal(t, 0, n.Sign())
	assert.True(t, n.IsInt())

	var zero Number
	assert.Equal(t, "0", zero.String())
}

func TestDateTimeOf(t *testing.T) {
	ts := time.Date(2024, time.February, 29, 13, 45, 7, 123000000, time.UTC)
	assert.Equal(t, DateTime{Year: 2024, Month: 2, Day: 29, Hour: 13, Minute: 45, Second: 7, Nanos: 123000000}, DateTimeOf(ts))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry[string]()

	var wg sync.WaitGroup
	ids := make([]uint64, 50)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Add("h")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
	seen := map[uint64]bool{}
	for _, id := range ids {
		assert.NotZero(t, id)
		assert.False(t, seen[id], "duplicate handle id %d", id)
		seen[id] = true
	}

	v, ok := r.Remove(ids[0])
	assert.True(t, ok)
	assert.Equal(t, "h", v)
	_, ok = r.Get(ids[0])
	assert.False(t, ok)
	assert.Equal(t, 49, r.Len())
}
