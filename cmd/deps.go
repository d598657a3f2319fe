package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemashift/schemashift/internal/audit"
	"github.com/schemashift/schemashift/internal/backup"
	"github.com/schemashift/schemashift/internal/config"
	"github.com/schemashift/schemashift/internal/engine"
	"github.com/schemashift/schemashift/internal/executor"
	"github.com/schemashift/schemashift/internal/guard"
	"github.com/schemashift/schemashift/internal/inspect"
	"github.com/schemashift/schemashift/internal/lock"
	"github.com/schemashift/schemashift/internal/logging"
	"github.com/schemashift/schemashift/internal/plan"
	"github.com/schemashift/schemashift/internal/rollback"
	"github.com/schemashift/schemashift/internal/verify"
)

// runtime holds one invocation's wired components.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string
	pool   *pgxpool.Pool
	engine *engine.Engine
}

func (r *runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// newRuntime loads config, opens the connection, and wires the engine.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger, logPath, err := logging.Setup(effectiveLogLevel(), cfg.Logging.Directory, runID)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	logger.Info("run started", "run_id", runID, "log", logPath)

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	inspector := inspect.New(pool, cfg.Database.Schema)
	mappings, columns := plan.FromConfig(cfg.Migration)

	sink := audit.NewTableSink(pool, cfg.Migration.AuditTable)
	if err := sink.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing audit table: %w", err)
	}
	auditor := audit.NewLogger(logger, sink)

	var uploader backup.Uploader
	if cfg.Backup.S3Bucket != "" {
		uploader, err = backup.NewS3Uploader(ctx, cfg.Backup.AWSProfile, cfg.Backup.AWSRegion)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("configuring S3 upload: %w", err)
		}
	}

	exec := executor.New(pool, cfg.Database.Schema, logger)

	eng := engine.New(cfg, logger, runID, engine.Deps{
		Guard:       guard.New(inspector),
		Backup:      backup.New(cfg, backup.ExecRunner{}, uploader, logger),
		Planner:     plan.NewPlanner(mappings, columns),
		Applier:     exec,
		Verifier:    verify.New(inspector),
		Snapshotter: inspector,
		Locker:      lock.New(pool),
		Rollbacker:  rollback.New(inspector, exec, auditor, logger, mappings, columns),
		Auditor:     auditor,
	})

	return &runtime{cfg: cfg, logger: logger, runID: runID, pool: pool, engine: eng}, nil
}
