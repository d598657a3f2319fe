package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schemashift/schemashift/internal/lock"
	"github.com/schemashift/schemashift/internal/prompt"
	"github.com/schemashift/schemashift/internal/report"
	"github.com/schemashift/schemashift/internal/rollback"
)

var rollbackYes bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the original table names",
	Long: `Rename every migrated table, constraint and index back to its original
name, in one transaction. Compatibility columns added by the migration are
left in place and listed for manual review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if !rollbackYes {
			ok, err := prompt.Confirm(rt.cfg.Database.Database, "rollback")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		result, err := rt.engine.Rollback(ctx, nil)
		if err != nil {
			switch {
			case errors.Is(err, lock.ErrLockHeld):
				return fmt.Errorf("another schemashift run holds the migration lock: %w", err)
			case errors.Is(err, rollback.ErrTargetMissing):
				return fmt.Errorf("nothing to roll back: %w", err)
			}
			return err
		}

		fmt.Print(report.RenderRollback(result))
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(rollbackCmd)
}
