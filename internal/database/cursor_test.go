package database

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocisql/internal/errs"
	"github.com/koustreak/ocisql/internal/native"
	"github.com/koustreak/ocisql/internal/native/nativetest"
)

var supportedTags = []native.TypeTag{
	native.TypeCHR, native.TypeNUM, native.TypeINT, native.TypeFLT,
	native.TypeSTR, native.TypeVNU, native.TypeVCS, native.TypeDAT,
	native.TypeUIN, native.TypeAFC, native.TypeAVC, native.TypeCLOB,
	native.TypeTimestamp, native.TypeTimestampTZ, native.TypeTimestampLTZ,
}

// query scripts sql as a select over cols and returns its open cursor.
func query(t *testing.T, lib *nativetest.Library, conn *Connection, sql string, cols []nativetest.Column, rows ...[]any) *Cursor {
	t.Helper()
	lib.On(sql, nativetest.Script{Kind: native.StmtSelect, Columns: cols, Rows: rows})
	res, err := conn.Execute(context.Background(), sql)
	require.NoError(t, err)
	require.NotNil(t, res.Cursor)
	return res.Cursor
}

func fetchOne(t *testing.T, cur *Cursor) []any {
	t.Helper()
	row, status, err := cur.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, row)
	return row
}

func TestDecode_NullForEveryTag(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)

	cols := make([]nativetest.Column, len(supportedTags))
	nulls := make([]any, len(supportedTags))
	for i, tag := range supportedTags {
		cols[i] = nativetest.Column{Name: "C" + string(rune('A'+i)), Type: tag, Size: 10}
	}

	cur := query(t, lib, conn, "SELECT nulls", cols, nulls)
	row := fetchOne(t, cur)
	require.Len(t, row, len(supportedTags))
	for i, v := range row {
		assert.Nil(t, v, "column %d (tag %d)", i+1, supportedTags[i])
	}
	cur.Close()

	teardown(t, lib, env, conn)
}

func TestDecode_ExactIntegers(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)

	big, err := native.ParseNumber("12345678901234567")
	require.NoError(t, err)

	cols := []nativetest.Column{
		{Name: "N", Type: native.TypeNUM, Size: 22},
		{Name: "I", Type: native.TypeINT, Size: 8},
		{Name: "U", Type: native.TypeUIN, Size: 8},
	}
	cur := query(t, lib, conn, "SELECT ints", cols,
		[]any{0, int64(0), uint64(0)},
		[]any{-1, int64(math.MinInt64), uint64(math.MaxUint64)},
		[]any{native.NumberFromInt64(math.MinInt64), int64(math.MaxInt64), uint64(1)},
		[]any{native.NumberFromUint64(math.MaxUint64), int64(-7), uint64(7)},
		[]any{big, int64(1), uint64(1)},
	)

	assert.Equal(t, []any{uint64(0), int64(0), uint64(0)}, fetchOne(t, cur))
	assert.Equal(t, []any{int64(-1), int64(math.MinInt64), uint64(math.MaxUint64)}, fetchOne(t, cur))
	assert.Equal(t, []any{int64(math.MinInt64), int64(math.MaxInt64), uint64(1)}, fetchOne(t, cur))
	assert.Equal(t, []any{uint64(math.MaxUint64), int64(-7), uint64(7)}, fetchOne(t, cur))
	assert.Equal(t, uint64(12345678901234567), fetchOne(t, cur)[0])

	row, _, err := cur.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, row)

	teardown(t, lib, env, conn)
}

func TestDecode_FractionalAndOutOfRangeNumbersAreFloat(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)

	huge, err := native.ParseNumber("1e30")
	require.NoError(t, err)

	cols := []nativetest.Column{
		{Name: "N", Type: native.TypeNUM, Size: 22},
		{Name: "F", Type: native.TypeFLT, Size: 8},
	}
	cur := query(t, lib, conn, "SELECT fractions", cols,
		[]any{"1.5", 2.25},
		[]any{"-0.25", -1.0},
		[]any{huge, 0.0},
	)

	assert.Equal(t, []any{1.5, 2.25}, fetchOne(t, cur))
	assert.Equal(t, []any{-0.25, -1.0}, fetchOne(t, cur))
	assert.Equal(t, []any{1e30, 0.0}, fetchOne(t, cur))
	cur.Close()

	teardown(t, lib, env, conn)
}

func TestDecode_WidenedWithoutInt64(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib, WithInt64(false))
	conn := connect(t, env)

	cols := []nativetest.Column{
		{Name: "N", Type: native.TypeNUM, Size: 22},
		{Name: "I", Type: native.TypeINT, Size: 8},
		{Name: "U", Type: native.TypeUIN, Size: 8},
	}
	cur := query(t, lib, conn, "SELECT widened", cols, []any{42, int64(-3), uint64(9)})

	assert.Equal(t, []any{42.0, -3.0, 9.0}, fetchOne(t, cur))

	types, err := cur.GetColumnTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"number", "number", "number"}, types)
	cur.Close()

	teardown(t, lib, env, conn)
}

func TestDecode_TextDatesAndLobs(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)

	ts := time.Date(2024, time.February, 29, 13, 45, 7, 123000000, time.UTC)
	cols := []nativetest.Column{
		{Name: "Name", Type: native.TypeCHR, Size: 5},
		{Name: "Born", Type: native.TypeDAT, Size: 7},
		{Name: "Seen", Type: native.TypeTimestampTZ, Size: 13},
		{Name: "Notes", Type: native.TypeCLOB, Size: 4000},
	}
	cur := query(t, lib, conn, "SELECT people", cols,
		[]any{"hello", ts, ts, strings.Repeat("ab", 3000)},
		[]any{"héllo world", ts, ts, ""},
	)
	assert.Equal(t, native.CharsetUTF8, lib.Charset(cur.stmt, 1))

	want := DateTime{Year: 2024, Month: 2, Day: 29, Hour: 13, Minute: 45, Second: 7, Fraction: 123000000}
	assert.Equal(t, []any{"hello", want, want, strings.Repeat("ab", 3000)}, fetchOne(t, cur))

	row := fetchOne(t, cur)
	assert.Equal(t, "héll", row[0], "text is cut to the column size")
	assert.Equal(t, "", row[3])

	cur.Close()
	assert.Zero(t, lib.LiveDescriptors())
	teardown(t, lib, env, conn)
}

func TestCursor_UnsupportedTypeLeaksNothing(t *testing.T) {
	lib := nativetest.New().On("SELECT blob", nativetest.Script{
		Kind: native.StmtSelect,
		Columns: []nativetest.Column{
			{Name: "D", Type: native.TypeDAT, Size: 7},
			{Name: "L", Type: native.TypeCLOB, Size: 4000},
			{Name: "B", Type: native.TypeBLOB, Size: 4000},
		},
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(context.Background(), "SELECT blob")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errs.IsUnsupportedType(err))
	assert.Contains(t, err.Error(), "invalid type 113 #3")

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, int(native.TypeBLOB), e.Tag)
	assert.Equal(t, 3, e.Column)

	assert.Zero(t, lib.LiveStatements())
	assert.Zero(t, lib.LiveDescriptors())
	assert.Zero(t, conn.Cursors())
	teardown(t, lib, env, conn)
}

func TestCursor_DescriptorAllocationFailure(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)
	lib.On("SELECT d", nativetest.Script{
		Kind:    native.StmtSelect,
		Columns: []nativetest.Column{{Name: "S", Type: native.TypeCHR, Size: 4}, {Name: "D", Type: native.TypeDAT, Size: 7}},
	})
	lib.FailAlloc(nativetest.AllocDescriptor)

	_, err := conn.Execute(context.Background(), "SELECT d")
	assert.True(t, errs.IsAllocation(err))
	assert.Zero(t, lib.LiveStatements())
	assert.Zero(t, conn.Cursors())

	teardown(t, lib, env, conn)
}

func TestCursor_CloseIsIdempotent(t *testing.T) {
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(context.Background(), selectOne)
	require.NoError(t, err)

	assert.True(t, res.Cursor.Close())
	assert.False(t, res.Cursor.Close())
	assert.Zero(t, conn.Cursors())

	teardown(t, lib, env, conn)
}

func TestCursor_AutoCloseThenArgumentError(t *testing.T) {
	ctx := context.Background()
	lib := newLib()
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, selectOne)
	require.NoError(t, err)
	cur := res.Cursor
	fetchOne(t, cur)

	row, _, err := cur.Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Zero(t, conn.Cursors())

	_, _, err = cur.Fetch(ctx)
	assert.True(t, errs.IsArgument(err))
	assert.Contains(t, err.Error(), "cursor is closed")

	_, err = cur.GetColumnNames()
	assert.True(t, errs.IsArgument(err))
	_, _, err = cur.FetchInto(ctx, &Record{}, "a")
	assert.True(t, errs.IsArgument(err))
	assert.False(t, cur.Close())

	teardown(t, lib, env, conn)
}

func TestCursor_ProjectionsAreMemoized(t *testing.T) {
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)

	cur := query(t, lib, conn, "SELECT cols", []nativetest.Column{
		{Name: "ID", Type: native.TypeNUM, Size: 22},
		{Name: "Label", Type: native.TypeVCS, Size: 30},
		{Name: "RATIO", Type: native.TypeFLT, Size: 8},
		{Name: "Created", Type: native.TypeDAT, Size: 7},
		{Name: "Stamp", Type: native.TypeTimestamp, Size: 11},
		{Name: "Big", Type: native.TypeINT, Size: 8},
		{Name: "Count", Type: native.TypeUIN, Size: 8},
	})

	names, err := cur.GetColumnNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "ratio", "created", "stamp", "big", "count"}, names)
	again, err := cur.GetColumnNames()
	require.NoError(t, err)
	assert.Same(t, &names[0], &again[0])

	types, err := cur.GetColumnTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"number", "string", "double", "datetime", "timestamp", "integer", "unsigned integer"}, types)

	desc, err := cur.GetColumnDescriptions()
	require.NoError(t, err)
	assert.Equal(t, ColumnDescription{Type: "string", MaxSize: 30}, desc["label"])
	assert.Equal(t, ColumnDescription{Type: "number", MaxSize: 0}, desc["id"])
	desc2, err := cur.GetColumnDescriptions()
	require.NoError(t, err)
	desc2["extra"] = ColumnDescription{}
	assert.Contains(t, desc, "extra", "descriptions are computed once")

	cols, err := cur.Columns()
	require.NoError(t, err)
	assert.Equal(t, native.TypeVCS, cols[1].Tag())
	assert.Equal(t, "label", cols[1].Name())

	cur.Close()
	teardown(t, lib, env, conn)
}

func TestCursor_FetchIntoModes(t *testing.T) {
	ctx := context.Background()
	lib := nativetest.New()
	env := newEnv(t, lib)
	conn := connect(t, env)

	cur := query(t, lib, conn, "SELECT pairs", []nativetest.Column{
		{Name: "K", Type: native.TypeVCS, Size: 8},
		{Name: "V", Type: native.TypeNUM, Size: 22},
	}, []any{"a", 1}, []any{"b", nil}, []any{"c", 3})

	rec := &Record{}
	got, status, err := cur.FetchInto(ctx, rec, "")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Same(t, rec, got)
	assert.Equal(t, []any{"a", uint64(1)}, rec.Values)
	assert.Nil(t, rec.Named)

	rec = &Record{}
	_, _, err = cur.FetchInto(ctx, rec, "a")
	require.NoError(t, err)
	assert.Nil(t, rec.Values)
	assert.Equal(t, map[string]any{"k": "b", "v": nil}, rec.Named)

	_, _, err = cur.FetchInto(ctx, rec, "an")
	require.NoError(t, err)
	assert.Equal(t, []any{"c", uint64(3)}, rec.Values)
	assert.Equal(t, map[string]any{"k": "c", "v": uint64(3)}, rec.Named)

	got, _, err = cur.FetchInto(ctx, rec, "n")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, cur.Closed())

	_, _, err = cur.FetchInto(ctx, nil, "n")
	assert.True(t, errs.IsArgument(err))

	teardown(t, lib, env, conn)
}

func TestCursor_PendingFetch(t *testing.T) {
	ctx := context.Background()
	lib := newLib().On("SELECT slow", nativetest.Script{
		Kind:         native.StmtSelect,
		Columns:      []nativetest.Column{{Name: "X", Type: native.TypeINT, Size: 8}},
		Rows:         [][]any{{int64(5)}},
		FetchPending: 1,
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, "SELECT slow")
	require.NoError(t, err)

	row, status, err := res.Cursor.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusStillExecuting, status)
	assert.Nil(t, row)
	assert.False(t, res.Cursor.Closed())

	assert.Equal(t, []any{int64(5)}, fetchOne(t, res.Cursor))

	res.Cursor.Close()
	teardown(t, lib, env, conn)
}

func TestCursor_FetchErrorKeepsCursorOpen(t *testing.T) {
	ctx := context.Background()
	lib := newLib().On("SELECT broken", nativetest.Script{
		Kind:     native.StmtSelect,
		Columns:  []nativetest.Column{{Name: "X", Type: native.TypeINT, Size: 8}},
		FetchErr: &nativetest.Failure{Code: 1555, Message: "ORA-01555: snapshot too old"},
	})
	env := newEnv(t, lib)
	conn := connect(t, env)

	res, err := conn.Execute(ctx, "SELECT broken")
	require.NoError(t, err)
	_, _, err = res.Cursor.Fetch(ctx)
	assert.True(t, errs.IsDatabase(err))
	assert.Equal(t, 1555, errs.CodeOf(err))
	assert.False(t, res.Cursor.Closed())

	res.Cursor.Close()
	teardown(t, lib, env, conn)
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "mixed_case", columnName("Mixed_CASE"))
	assert.Len(t, columnName(strings.Repeat("A", 300)), maxColumnName)

	// a multi-byte rune straddling the bound is dropped whole
	name := strings.Repeat("a", maxColumnName-1) + "é"
	assert.Equal(t, strings.Repeat("a", maxColumnName-1), columnName(name))
}
