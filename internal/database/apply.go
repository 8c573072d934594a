package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Apply runs script against the Postgres database described by config.
// The script is sent as one simple-protocol request so that it may hold any
// number of statements, including DO blocks.
func Apply(ctx context.Context, config Config, script string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if !config.IsPostgres() {
		return fmt.Errorf("apply requires a PostgreSQL driver, got %q", config.Driver)
	}

	connStr, cleanup, err := Connect(config, log)
	if err != nil {
		return err
	}
	defer cleanup()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer conn.Close(context.Background())

	return ApplyScript(ctx, conn, script, log)
}

// ApplyScript runs script on an open connection.
func ApplyScript(ctx context.Context, conn *pgx.Conn, script string, log *zap.Logger) error {
	tag, err := conn.Exec(ctx, script, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	log.Debug("migration applied", zap.String("tag", tag.String()))
	return nil
}
