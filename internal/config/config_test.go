package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocisql/internal/errs"
)

func TestParse(t *testing.T) {
	raw := []byte(`
backend: postgres
source: localhost:5432/app
user: scott
password: tiger
precision: double
prefetch_rows: 10
autocommit: false
log:
  level: debug
  format: json
http:
  addr: 127.0.0.1:9000
`)
	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "localhost:5432/app", cfg.Source)
	assert.Equal(t, "scott", cfg.User)
	assert.Equal(t, "tiger", cfg.Password)
	assert.Equal(t, PrecisionDouble, cfg.Precision)
	assert.False(t, cfg.Int64())
	assert.Equal(t, 10, cfg.PrefetchRows)
	assert.False(t, cfg.AutoCommit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestParse_KeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("source: data.db\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "data.db", cfg.Source)
	assert.True(t, cfg.Int64())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.AutoCommit)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown backend", raw: "backend: oracle\n"},
		{name: "unknown precision", raw: "precision: float\n"},
		{name: "negative prefetch", raw: "prefetch_rows: -1\n"},
		{name: "bad yaml", raw: "backend: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errs.IsArgument(err))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocisql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: mysql\nsource: db:3306/app\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMySQL, cfg.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsArgument(err))
}
