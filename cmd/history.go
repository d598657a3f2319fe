package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit trail of past migrations and rollbacks",
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

		table := pgx.Identifier{cfg.Migration.AuditTable}.Sanitize()
		rows, err := pool.Query(ctx, fmt.Sprintf(
			`SELECT created_at, action, resource, severity, metadata FROM %s ORDER BY created_at DESC LIMIT $1`, table,
		), historyLimit)
		if err != nil {
			return fmt.Errorf("reading audit table: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				createdAt time.Time
				action    string
				resource  string
				severity  string
				metadata  map[string]any
			)
			if err := rows.Scan(&createdAt, &action, &resource, &severity, &metadata); err != nil {
				return fmt.Errorf("scanning audit row: %w", err)
			}
			fmt.Printf("%s  %-7s %-32s %s", createdAt.Format(time.RFC3339), severity, action, resource)
			if runID, ok := metadata["run_id"]; ok {
				fmt.Printf("  run=%v", runID)
			}
			fmt.Println()
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reading audit table: %w", err)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "number of records to show")
	rootCmd.AddCommand(historyCmd)
}
