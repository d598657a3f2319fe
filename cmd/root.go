package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/schemashift/schemashift/internal/config"
)

var (
	cfgFile  string
	logLevel string
	verbose  bool
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "schemashift",
	Short: "Schemashift renames live PostgreSQL schemas safely",
	Long: `Schemashift renames legacy CamelCase tables to snake_case in a live
PostgreSQL database, in one transaction, with a backup taken first and a
full audit trail. Every rename is reversible with the rollback command.`,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.schemashift/schemashift.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")
}

func effectiveLogLevel() string {
	if verbose {
		return "debug"
	}
	return logLevel
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openPool opens a single-connection pool. One connection keeps the
// advisory lock session and every subsequent query on the same backend.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d/%s: %w",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging %s:%d/%s: %w",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, err)
	}
	return pool, nil
}
