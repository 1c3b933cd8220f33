package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocisql/internal/native"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		want    string
		wantErr bool
	}{
		{
			name:   "short form",
			source: "localhost:5433/app",
			want:   "host=localhost port=5433 sslmode=disable dbname=app user=scott password=tiger",
		},
		{
			name:   "host only",
			source: "db.internal",
			want:   "host=db.internal port=5432 sslmode=disable user=scott password=tiger",
		},
		{
			name:   "keyword string",
			source: "host=db dbname=app sslmode=require",
			want:   "host=db dbname=app sslmode=require user=scott password=tiger",
		},
		{
			name:   "url",
			source: "postgres://db:5432/app?sslmode=disable",
			want:   "postgres://scott:tiger@db:5432/app?sslmode=disable",
		},
		{
			name:    "bad port",
			source:  "db:abc/app",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.source, "scott", "tiger")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "plain", quote("plain"))
	assert.Equal(t, "''", quote(""))
	assert.Equal(t, `'it\'s a pass'`, quote("it's a pass"))
}

func TestMapError(t *testing.T) {
	code, msg, ok := mapError(fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgErrUndefinedTable, Message: `relation "t" does not exist`, Severity: "ERROR"}))
	require.True(t, ok)
	assert.Equal(t, 942, code)
	assert.Contains(t, msg, "42P01")

	code, _, ok = mapError(&pq.Error{Code: pgErrInvalidPassword, Message: "password authentication failed"})
	require.True(t, ok)
	assert.Equal(t, 1017, code)

	code, _, ok = mapError(&pgconn.PgError{Code: "40001"})
	require.True(t, ok)
	assert.Equal(t, codeOf("40001"), code)
	assert.NotZero(t, code)

	_, _, ok = mapError(errors.New("other"))
	assert.False(t, ok)
}

func TestDialects(t *testing.T) {
	pgx := Dialect()
	assert.Equal(t, "pgx", pgx.DriverName)
	pq := PQ()
	assert.Equal(t, "postgres", pq.DriverName)
	assert.Equal(t, pgx.Tables, pq.Tables)

	tag, ok := typeTag("JSONB")
	require.True(t, ok)
	assert.Equal(t, native.TypeCLOB, tag)
	_, ok = typeTag("INT4")
	assert.False(t, ok, "left to the generic mapping")
}
