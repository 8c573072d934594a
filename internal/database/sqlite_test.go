package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robmartinson/pgmigrate/internal/schema"
)

func ip(v int) *int { return &v }

func TestMapSQLiteTypeToPostgreSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		declared string
		want     schema.Column
	}{
		{declared: "VARCHAR(50)", want: schema.Column{Type: "character varying", MaxLength: ip(50)}},
		{declared: "varchar", want: schema.Column{Type: "character varying"}},
		{declared: "NVARCHAR ( 10 )", want: schema.Column{Type: "character varying", MaxLength: ip(10)}},
		{declared: "DECIMAL(10,2)", want: schema.Column{Type: "numeric", Precision: ip(10), Scale: ip(2)}},
		{declared: "NUMERIC(10)", want: schema.Column{Type: "numeric", Precision: ip(10)}},
		{declared: "INTEGER", want: schema.Column{Type: "integer"}},
		{declared: "BIGINT", want: schema.Column{Type: "bigint"}},
		{declared: "TINYINT", want: schema.Column{Type: "smallint"}},
		{declared: "DOUBLE PRECISION", want: schema.Column{Type: "double precision"}},
		{declared: "REAL", want: schema.Column{Type: "real"}},
		{declared: "BOOLEAN", want: schema.Column{Type: "boolean"}},
		{declared: "DATETIME", want: schema.Column{Type: "timestamp without time zone"}},
		{declared: "DATE", want: schema.Column{Type: "date"}},
		{declared: "BLOB", want: schema.Column{Type: "bytea"}},
		{declared: "", want: schema.Column{Type: "bytea"}},
		{declared: "TEXT", want: schema.Column{Type: "text"}},
		{declared: "UNSIGNED BIG INT", want: schema.Column{Type: "bigint"}},
		{declared: "VARYING CHARACTER(255)", want: schema.Column{Type: "character varying", MaxLength: ip(255)}},
		{declared: "BIGINTEGER", want: schema.Column{Type: "integer"}},
		{declared: "LONGTEXT", want: schema.Column{Type: "text"}},
		{declared: "FLOATING POINT", want: schema.Column{Type: "integer"}},
		{declared: "FLOAT8", want: schema.Column{Type: "double precision"}},
		{declared: "JSON", want: schema.Column{Type: "text"}},
		{declared: "???", want: schema.Column{Type: "text"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.declared, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, mapSQLiteTypeToPostgreSQL(tt.declared)); diff != "" {
				t.Fatalf("mapSQLiteTypeToPostgreSQL(%q) mismatch (-want +got):\n%s", tt.declared, diff)
			}
		})
	}
}

func TestSQLiteSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := sql.Open(DriverSQLite, path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			balance DECIMAL(12,2)
		);
		CREATE TABLE accounts (owner TEXT);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	src, err := NewSource(ctx, Config{Driver: DriverSQLite, Database: path}, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.Ping(ctx))
	assert.Equal(t, schema.DefaultNamespace, src.Namespace())

	snap, err := schema.Read(ctx, src)
	require.NoError(t, err)

	want := []schema.Table{
		{Name: "accounts", Columns: []schema.Column{{Name: "owner", Type: "text"}}},
		{Name: "users", Columns: []schema.Column{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "character varying", MaxLength: ip(255)},
			{Name: "balance", Type: "numeric", Precision: ip(12), Scale: ip(2)},
		}},
	}
	if diff := cmp.Diff(want, snap.Tables, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteSourceMissingFile(t *testing.T) {
	_, err := NewSource(context.Background(), Config{Driver: DriverSQLite, Database: filepath.Join(t.TempDir(), "nope.db")}, nil)
	require.Error(t, err)

	_, err = NewSource(context.Background(), Config{Driver: DriverSQLite}, nil)
	require.Error(t, err)
}

func TestSQLiteURIEscapesPath(t *testing.T) {
	assert.Equal(t, "file:/data/app.db?mode=ro", sqliteURI("/data/app.db", "ro"))
	assert.Equal(t, "file:/data/a%3Fb%23c.db?mode=ro", sqliteURI("/data/a?b#c.db", "ro"))
	assert.Equal(t, "file:rel.db?mode=rwc", sqliteURI("rel.db", "rwc"))
}

func TestSQLiteSourceOddPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a?b#c.db")

	db, err := sql.Open(DriverSQLite, sqliteURI(path, "rwc"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE items (label VARCHAR(40))`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	src, err := NewSource(ctx, Config{Driver: DriverSQLite, Database: path}, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	tables, err := src.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"items"}, tables)
}
