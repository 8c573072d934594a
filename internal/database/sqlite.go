package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/robmartinson/pgmigrate/internal/schema"
)

// newSQLiteSource opens the SQLite file named by config.Database read-only.
func newSQLiteSource(ctx context.Context, config Config, log *zap.Logger) (*Source, error) {
	if config.Database == "" {
		return nil, fmt.Errorf("sqlite3 driver requires a database file")
	}
	if _, err := os.Stat(config.Database); err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db, err := sql.Open(DriverSQLite, sqliteURI(config.Database, "ro"))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	log.Debug("opened SQLite database", zap.String("file", config.Database))

	return &Source{db: db, catalog: sqliteCatalog{}, log: log}, nil
}

// sqliteURI builds a file: URI for path, percent-escaping characters such as
// '?' and '#' that would otherwise end the path.
func sqliteURI(path, mode string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: url.Values{"mode": {mode}}.Encode(),
	}
	return u.String()
}

type sqliteCatalog struct{}

func (sqliteCatalog) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	var tables []string

	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func (sqliteCatalog) listColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, error) {
	var columns []schema.Column

	rows, err := db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, declared string
		if err := rows.Scan(&name, &declared); err != nil {
			return nil, err
		}
		col := mapSQLiteTypeToPostgreSQL(declared)
		col.Name = name
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

var declaredTypeRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

// mapSQLiteTypeToPostgreSQL turns a declared SQLite column type into the
// Postgres type information_schema would report for the equivalent column.
// Unknown declarations follow SQLite's affinity rules.
func mapSQLiteTypeToPostgreSQL(declared string) schema.Column {
	m := declaredTypeRe.FindStringSubmatch(declared)
	if m == nil {
		return schema.Column{Type: affinityType(declared)}
	}

	base := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
	first := atoiPtr(m[2])
	second := atoiPtr(m[3])

	switch base {
	case "varchar", "character varying", "varying character", "nvarchar", "native character", "nchar", "char", "character":
		return schema.Column{Type: "character varying", MaxLength: first}
	case "numeric", "decimal":
		return schema.Column{Type: "numeric", Precision: first, Scale: second}
	case "integer", "int", "mediumint", "int4":
		return schema.Column{Type: "integer"}
	case "bigint", "int8", "unsigned big int":
		return schema.Column{Type: "bigint"}
	case "smallint", "tinyint", "int2":
		return schema.Column{Type: "smallint"}
	case "real", "float4":
		return schema.Column{Type: "real"}
	case "double", "double precision", "float", "float8":
		return schema.Column{Type: "double precision"}
	case "boolean", "bool":
		return schema.Column{Type: "boolean"}
	case "datetime", "timestamp":
		return schema.Column{Type: "timestamp without time zone"}
	case "date":
		return schema.Column{Type: "date"}
	case "blob":
		return schema.Column{Type: "bytea"}
	case "text", "clob":
		return schema.Column{Type: "text"}
	default:
		return schema.Column{Type: affinityType(base)}
	}
}

// affinityType applies SQLite's column affinity rules to a declared type.
func affinityType(declared string) string {
	upper := strings.ToUpper(declared)
	switch {
	case strings.TrimSpace(upper) == "":
		return "bytea"
	case strings.Contains(upper, "INT"):
		return "integer"
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "CLOB"), strings.Contains(upper, "TEXT"):
		return "text"
	case strings.Contains(upper, "BLOB"):
		return "bytea"
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return "double precision"
	default:
		return "text"
	}
}

func atoiPtr(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
