package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/robmartinson/pgmigrate/internal/schema"
)

// Connect resolves the Postgres connection string for config, opening an SSH
// tunnel first when a key is configured. The returned cleanup is never nil.
func Connect(config Config, log *zap.Logger) (string, func(), error) {
	noop := func() {}

	switch {
	case config.ConnectionString != "":
		return config.ConnectionString, noop, nil
	case config.SSHKey != "":
		connStr, cleanup, err := SetupTunnel(config, log)
		if err != nil {
			return "", noop, fmt.Errorf("failed to setup SSH tunnel: %w", err)
		}
		return connStr, cleanup, nil
	default:
		return config.DSN(config.Host, config.Port), noop, nil
	}
}

// NewSource opens the database described by config and verifies it answers.
func NewSource(ctx context.Context, config Config, log *zap.Logger) (*Source, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if config.Driver == DriverSQLite {
		return newSQLiteSource(ctx, config, log)
	}

	driver := config.Driver
	if driver == "" {
		driver = DriverPQ
	}
	if !config.IsPostgres() {
		return nil, fmt.Errorf("unsupported driver %q", config.Driver)
	}

	connStr, cleanup, err := Connect(config, log)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		cleanup()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	log.Debug("connected to PostgreSQL", zap.String("driver", driver), zap.String("database", config.Database))

	return &Source{
		db:      db,
		catalog: pgCatalog{namespace: schema.DefaultNamespace},
		cleanup: cleanup,
		log:     log,
	}, nil
}

// Close closes the database connections and cleans up resources
func (s *Source) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Ping checks that the database still answers.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Namespace reports the schema tables are read from.
func (s *Source) Namespace() string {
	if pg, ok := s.catalog.(pgCatalog); ok {
		return pg.namespace
	}
	return schema.DefaultNamespace
}

// ListTables returns all base tables in the namespace, ordered by name.
func (s *Source) ListTables(ctx context.Context) ([]string, error) {
	tables, err := s.catalog.listTables(ctx, s.db)
	if err != nil {
		return nil, err
	}
	s.log.Debug("listed tables", zap.Int("count", len(tables)))
	return tables, nil
}

// ListColumns returns the columns of table in declaration order.
func (s *Source) ListColumns(ctx context.Context, table string) ([]schema.Column, error) {
	cols, err := s.catalog.listColumns(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	s.log.Debug("listed columns", zap.String("table", table), zap.Int("count", len(cols)))
	return cols, nil
}

type pgCatalog struct {
	namespace string
}

func (c pgCatalog) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	var tables []string

	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE' ORDER BY table_name
	`, c.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

func (c pgCatalog) listColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, error) {
	var columns []schema.Column

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, udt_schema, udt_name,
			character_maximum_length, numeric_precision, numeric_scale
		FROM information_schema.columns
		WHERE table_schema = $1
		AND table_name = $2
		ORDER BY ordinal_position
	`, c.namespace, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var col schema.Column
		var udtSchema, udtName string
		var maxLen, precision, scale sql.NullInt64

		if err := rows.Scan(&col.Name, &col.Type, &udtSchema, &udtName, &maxLen, &precision, &scale); err != nil {
			return nil, err
		}

		col.Type = pgTypeName(col.Type, udtSchema, udtName, c.namespace)
		col.MaxLength = nullInt(maxLen)
		col.Precision = nullInt(precision)
		col.Scale = nullInt(scale)

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// pgTypeName replaces the placeholders information_schema reports for arrays
// and user-defined types with something that can appear in a column
// definition. Built-in types keep their bare name; anything else is quoted
// and qualified with its schema unless that is the namespace being read.
func pgTypeName(dataType, udtSchema, udtName, namespace string) string {
	switch dataType {
	case "ARRAY":
		return udtRef(udtSchema, strings.TrimPrefix(udtName, "_"), namespace) + "[]"
	case "USER-DEFINED":
		return udtRef(udtSchema, udtName, namespace)
	default:
		return dataType
	}
}

func udtRef(udtSchema, name, namespace string) string {
	switch udtSchema {
	case "pg_catalog", "":
		return name
	case namespace:
		return pq.QuoteIdentifier(name)
	default:
		return pq.QuoteIdentifier(udtSchema) + "." + pq.QuoteIdentifier(name)
	}
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
