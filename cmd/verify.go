package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schemashift/schemashift/internal/inspect"
	"github.com/schemashift/schemashift/internal/plan"
	"github.com/schemashift/schemashift/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every migrated table exists and is queryable",
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

		mappings, _ := plan.FromConfig(cfg.Migration)
		targets := plan.TableTargets(mappings)

		inspector := inspect.New(pool, cfg.Database.Schema)
		result, err := verify.New(inspector).Check(ctx, targets)
		if err != nil {
			return fmt.Errorf("verification could not run: %w", err)
		}
		if !result.OK() {
			return fmt.Errorf("%s", result.Warning())
		}

		fmt.Printf("Verified %d tables.\n", result.Checked)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
