package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schemashift/schemashift/internal/engine"
	"github.com/schemashift/schemashift/internal/executor"
	"github.com/schemashift/schemashift/internal/guard"
	"github.com/schemashift/schemashift/internal/lock"
	"github.com/schemashift/schemashift/internal/prompt"
	"github.com/schemashift/schemashift/internal/report"
)

var (
	migrateDryRun   bool
	migrateNoBackup bool
	migrateYes      bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rename legacy tables to their snake_case names",
	Long: `Plan and execute the rename migration: tables, dependent constraints
and indexes, plus compatibility columns, all in one transaction. A pg_dump
backup is taken first unless --no-backup is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if !migrateDryRun && !migrateYes {
			ok, err := prompt.Confirm(rt.cfg.Database.Database, "migrate")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		result, err := rt.engine.Migrate(ctx, engine.Options{DryRun: migrateDryRun, NoBackup: migrateNoBackup})
		if result != nil && result.Plan != nil {
			fmt.Print(report.RenderResult(result))
		}
		if err != nil {
			switch {
			case errors.Is(err, lock.ErrLockHeld):
				return fmt.Errorf("another schemashift run holds the migration lock: %w", err)
			case errors.Is(err, guard.ErrWrongDatabase), errors.Is(err, guard.ErrTargetExists):
				return err
			}
			if result != nil && result.State == executor.StateFailed {
				fmt.Fprintln(os.Stderr, "The transaction was rolled back; the schema is unchanged.")
			}
			return err
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "print the plan without changing anything")
	migrateCmd.Flags().BoolVar(&migrateNoBackup, "no-backup", false, "skip the pg_dump backup (not recommended)")
	migrateCmd.Flags().BoolVarP(&migrateYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(migrateCmd)
}
