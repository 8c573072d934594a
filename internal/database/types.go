package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/robmartinson/pgmigrate/internal/schema"
)

// Driver names accepted in Config.Driver
const (
	DriverPQ     = "postgres" // github.com/lib/pq
	DriverPgx    = "pgx"      // github.com/jackc/pgx/v5/stdlib
	DriverSQLite = "sqlite3"  // github.com/mattn/go-sqlite3
)

// Config holds all configuration for database connections
type Config struct {
	Driver           string
	ConnectionString string
	Host             string
	Port             int
	Database         string
	User             string
	Password         string
	SSLMode          string
	SSHKey           string
	SSHUser          string
	SSHHost          string
	SSHPort          int
	SSHKnownHosts    string
}

// IsPostgres reports whether the configured driver talks to Postgres.
func (c Config) IsPostgres() bool {
	return c.Driver == "" || c.Driver == DriverPQ || c.Driver == DriverPgx
}

// DSN builds a libpq keyword/value connection string for host and port.
// Both lib/pq and pgx accept this form.
func (c Config) DSN(host string, port int) string {
	parts := []string{
		"host=" + dsnValue(host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + dsnValue(c.Database),
		"user=" + dsnValue(c.User),
	}
	if c.Password != "" {
		parts = append(parts, "password="+dsnValue(c.Password))
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+dsnValue(c.SSLMode))
	}
	return strings.Join(parts, " ")
}

// dsnValue quotes v when it is empty or contains characters that would end
// a keyword/value pair.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// catalog answers metadata queries in one database's own terms.
type catalog interface {
	listTables(ctx context.Context, db *sql.DB) ([]string, error)
	listColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, error)
}

// Source is a schema.MetadataSource backed by a live database connection.
type Source struct {
	db      *sql.DB
	catalog catalog
	cleanup func()
	log     *zap.Logger
}
