package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/robmartinson/pgmigrate/internal/database"
	"github.com/robmartinson/pgmigrate/internal/migration"
	"github.com/robmartinson/pgmigrate/internal/schema"
	"github.com/robmartinson/pgmigrate/internal/sink"
)

// resolveConfig reads the connection settings and prompts for them when asked to.
func resolveConfig(cmd *cobra.Command, v *viper.Viper) (database.Config, error) {
	config := getConfig(v)

	configured := config.ConnectionString != "" || v.IsSet("db") || config.Driver == database.DriverSQLite
	if shouldPrompt(v.GetBool("interactive"), configured, cmd.InOrStdin()) {
		if err := NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).Fill(&config); err != nil {
			return config, err
		}
	}
	return config, nil
}

// openSource returns the metadata source for the command: a snapshot file
// when --from-snapshot is set, the configured database otherwise.
func openSource(cmd *cobra.Command, v *viper.Viper, log *zap.Logger) (schema.MetadataSource, func(), error) {
	if path := v.GetString("from-snapshot"); path != "" {
		snap, err := schema.LoadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: load snapshot: %w", schema.ErrSourceUnavailable, err)
		}
		log.Debug("loaded snapshot", zap.String("file", path), zap.Int("tables", len(snap.Tables)))
		return schema.NewStaticSource(snap), func() {}, nil
	}

	config, err := resolveConfig(cmd, v)
	if err != nil {
		return nil, nil, err
	}

	src, err := database.NewSource(cmd.Context(), config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", schema.ErrSourceUnavailable, err)
	}
	return src, src.Close, nil
}

func runGenerate(cmd *cobra.Command, v *viper.Viper) error {
	log := newLogger(cmd.ErrOrStderr(), v.GetBool("debug"))
	defer log.Sync()

	dialect, err := migration.LookupDialect(v.GetString("dialect"))
	if err != nil {
		return err
	}

	src, closeSource, err := openSource(cmd, v, log)
	if err != nil {
		return err
	}
	defer closeSource()

	// The whole snapshot is read before the sink is opened so a source
	// failure never leaves an artifact behind.
	snap, err := schema.Read(cmd.Context(), src)
	if err != nil {
		return err
	}
	for _, table := range snap.Tables {
		log.Info("read table", zap.String("table", table.Name), zap.Int("columns", len(table.Columns)))
	}

	artifact := migration.Emit(snap, time.Now, migration.WithDialect(dialect))

	output := v.GetString("output")
	opts := append(sinkOptions(v, cmd), sink.WithClock(func() time.Time { return artifact.GeneratedAt }))
	location, err := sink.WriteTo(cmd.Context(), output, artifact, opts...)
	if err != nil {
		return err
	}

	log.Info("migration generated",
		zap.String("dialect", dialect.Name()),
		zap.Int("tables", artifact.Tables()),
		zap.Int("blocks", len(artifact.Blocks)),
	)
	if output != sink.Stdout {
		fmt.Fprintf(cmd.OutOrStdout(), "migration file created: %s\n", location)
	}
	return nil
}

func runInspect(cmd *cobra.Command, v *viper.Viper) error {
	log := newLogger(cmd.ErrOrStderr(), v.GetBool("debug"))
	defer log.Sync()

	format := strings.ToLower(v.GetString("format"))
	var snapFormat schema.Format
	if format != "table" {
		f, err := schema.ParseFormat(format)
		if err != nil {
			return err
		}
		snapFormat = f
	}

	src, closeSource, err := openSource(cmd, v, log)
	if err != nil {
		return err
	}
	defer closeSource()

	snap, err := schema.Read(cmd.Context(), src)
	if err != nil {
		return err
	}

	_, err = sink.Write(cmd.Context(), v.GetString("output"), func(w io.Writer) error {
		if snapFormat == "" {
			return printTables(w, snap)
		}
		return snap.Encode(w, snapFormat)
	}, sinkOptions(v, cmd)...)
	return err
}

// printTables prints each table's columns the way a person would want to
// eyeball them before generating.
func printTables(w io.Writer, snap *schema.Snapshot) error {
	rule := strings.Repeat("-", 100)
	for _, table := range snap.Tables {
		fmt.Fprintf(w, "\n%s\nTable:  %s\n%s\n", rule, table.Name, rule)
		for _, col := range table.Columns {
			fmt.Fprintf(w, "%-20s %-20s\n", col.Name, migration.TypeExpression(col))
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func runApply(cmd *cobra.Command, v *viper.Viper, file string) error {
	log := newLogger(cmd.ErrOrStderr(), v.GetBool("debug"))
	defer log.Sync()

	var (
		script []byte
		err    error
	)
	if file == sink.Stdout {
		script, err = io.ReadAll(cmd.InOrStdin())
	} else {
		script, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}

	config, err := resolveConfig(cmd, v)
	if err != nil {
		return err
	}

	if err := database.Apply(cmd.Context(), config, string(script), log); err != nil {
		return err
	}

	log.Info("migration applied", zap.String("file", file), zap.String("database", config.Database))
	return nil
}

func runValidate(cmd *cobra.Command, v *viper.Viper) error {
	log := newLogger(cmd.ErrOrStderr(), v.GetBool("debug"))
	defer log.Sync()

	config, err := resolveConfig(cmd, v)
	if err != nil {
		return err
	}

	src, err := database.NewSource(cmd.Context(), config, log)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	defer src.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid and database is accessible")
	return nil
}
