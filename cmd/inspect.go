package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/schemashift/schemashift/internal/inspect"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the current schema snapshot as YAML",
	Long: `Take a read-only snapshot of the configured schema: tables, columns,
primary keys, indexes and foreign key fan-in. Useful for reviewing what the
planner will see before a migration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		snap, err := inspect.New(pool, cfg.Database.Schema).Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("taking schema snapshot: %w", err)
		}

		out, err := yaml.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
