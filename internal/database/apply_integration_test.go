//go:build integration

package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robmartinson/pgmigrate/internal/migration"
	"github.com/robmartinson/pgmigrate/internal/schema"
)

// getTestDSN reads the PGMIGRATE_TEST_DSN environment variable.
// If it is empty, the caller should skip the test.
func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PGMIGRATE_TEST_DSN")
	if dsn == "" {
		t.Skip("PGMIGRATE_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// TestApplyIsIdempotent applies the same artifact twice, with a pre-existing
// partial table in between, and checks the resulting columns.
func TestApplyIsIdempotent(t *testing.T) {
	dsn := getTestDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := fmt.Sprintf("pgmigrate_it_%d", time.Now().UnixNano())
	snap := &schema.Snapshot{Tables: []schema.Table{{Name: table, Columns: []schema.Column{
		{Name: "id", Type: "integer"},
		{Name: "name", Type: "character varying", MaxLength: ip(255)},
		{Name: "balance", Type: "numeric", Precision: ip(12), Scale: ip(2)},
	}}}}

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(context.Background())
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS "public".%q`, table))
	})

	// The target already has the table with one of the columns.
	_, err = conn.Exec(ctx, fmt.Sprintf(`CREATE TABLE "public".%q (id integer)`, table))
	require.NoError(t, err)

	for _, d := range []migration.Dialect{migration.Guarded, migration.IfNotExists} {
		script := migration.Emit(snap, time.Now, migration.WithDialect(d)).String()
		for i := 0; i < 2; i++ {
			require.NoError(t, Apply(ctx, Config{ConnectionString: dsn, Driver: DriverPgx}, script, zap.NewNop()), "%s run %d", d.Name(), i)
		}
	}

	src, err := NewSource(ctx, Config{ConnectionString: dsn, Driver: DriverPgx}, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	cols, err := src.ListColumns(ctx, table)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "character varying(255)", migration.TypeExpression(cols[1]))
	assert.Equal(t, "numeric(12,2)", migration.TypeExpression(cols[2]))
}
