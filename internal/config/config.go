package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/robmartinson/pgmigrate/internal/database"
	"github.com/robmartinson/pgmigrate/internal/sink"
)

// Version is printed by the version command
var Version = "1.0"

// Execute builds the command tree and runs it with ctx
func Execute(ctx context.Context) error {
	return NewRootCommand(viper.New()).ExecuteContext(ctx)
}

// NewRootCommand returns the pgmigrate command tree bound to v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "pgmigrate",
		Short: "Idempotent PostgreSQL migration generator",
		Long: `A schema migration tool that reads the tables and columns of a
PostgreSQL database and writes a DDL script which, applied to any other
database, creates whatever tables and columns are missing. The script is
safe to run any number of times.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v, cfgFile)
		},
	}

	generateCmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"create"},
		Short:   "Generate an idempotent migration from the database schema",
		Long: `Read every table in the public schema and write a migration that
creates each table if absent and adds each column if absent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, v)
		},
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the structure of every table",
		Long: `Print each table's columns and types, or dump the whole schema
snapshot as YAML or JSON for later use with generate --from-snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, v)
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Run a migration file against the database",
		Long: `Execute a generated migration against the configured database.
Use "-" to read the migration from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, v, args[0])
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate database connection and configuration",
		Long: `Test the database connection and configuration settings
without generating anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, v)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pgmigrate v%s\n", Version)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pgmigrate.yaml)")
	pf.Bool("debug", false, "Enable debug logging")
	pf.BoolP("interactive", "i", false, "Prompt for connection settings")

	// Database connection flags
	pf.String("driver", database.DriverPQ, "Database driver (postgres, pgx, sqlite3)")
	pf.String("pg", "", "PostgreSQL connection string (optional)")
	pf.String("host", "localhost", "PostgreSQL host")
	pf.Int("port", 5432, "PostgreSQL port")
	pf.String("db", "postgres", "PostgreSQL database name, or SQLite file with --driver sqlite3")
	pf.String("user", "postgres", "PostgreSQL user")
	pf.String("password", "", "PostgreSQL password")
	pf.String("sslmode", "disable", "PostgreSQL sslmode")

	// SSH tunnel flags
	pf.String("sshkey", "", "Path to SSH private key file")
	pf.String("sshuser", "", "SSH user")
	pf.String("sshhost", "", "SSH host")
	pf.Int("sshport", 22, "SSH port")
	pf.String("sshknownhosts", "", "known_hosts file used to verify the SSH host key")

	// S3 sink flags
	pf.String("s3-region", "", "AWS region for s3:// outputs")
	pf.String("s3-endpoint", "", "Endpoint for S3-compatible storage")

	// Command specific flags
	generateCmd.Flags().StringP("output", "o", sink.DefaultDir+"/", `Output file, directory, s3://bucket/key or "-" for stdout`)
	generateCmd.Flags().String("dialect", "guarded", "Guard style (guarded, if-not-exists)")
	generateCmd.Flags().String("from-snapshot", "", "Read the schema from a snapshot file instead of a database")

	inspectCmd.Flags().StringP("output", "o", sink.Stdout, `Output file, s3://bucket/key or "-" for stdout`)
	inspectCmd.Flags().StringP("format", "f", "table", "Output format (table, yaml, json)")
	inspectCmd.Flags().String("from-snapshot", "", "Read the schema from a snapshot file instead of a database")

	rootCmd.AddCommand(generateCmd, inspectCmd, applyCmd, validateCmd, versionCmd)

	return rootCmd
}

// initConfig binds the running command's flags and loads the config file.
func initConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(".pgmigrate")
	}

	v.SetEnvPrefix("PGMIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func getConfig(v *viper.Viper) database.Config {
	return database.Config{
		Driver:           v.GetString("driver"),
		ConnectionString: v.GetString("pg"),
		Host:             v.GetString("host"),
		Port:             v.GetInt("port"),
		Database:         v.GetString("db"),
		User:             v.GetString("user"),
		Password:         v.GetString("password"),
		SSLMode:          v.GetString("sslmode"),
		SSHKey:           v.GetString("sshkey"),
		SSHUser:          v.GetString("sshuser"),
		SSHHost:          v.GetString("sshhost"),
		SSHPort:          v.GetInt("sshport"),
		SSHKnownHosts:    v.GetString("sshknownhosts"),
	}
}

func sinkOptions(v *viper.Viper, cmd *cobra.Command) []sink.Option {
	return []sink.Option{
		sink.WithStdout(cmd.OutOrStdout()),
		sink.WithS3Config(sink.S3Config{
			Region:   v.GetString("s3-region"),
			Endpoint: v.GetString("s3-endpoint"),
		}),
	}
}
