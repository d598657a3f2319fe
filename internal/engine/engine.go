// Package engine wires the migration phases together: lock, safety gate,
// backup, plan, transactional execution, verification, audit. Each phase
// fully completes before the next starts; there is no internal concurrency.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schemashift/schemashift/internal/audit"
	"github.com/schemashift/schemashift/internal/config"
	"github.com/schemashift/schemashift/internal/executor"
	"github.com/schemashift/schemashift/internal/inspect"
	"github.com/schemashift/schemashift/internal/plan"
	"github.com/schemashift/schemashift/internal/rollback"
	"github.com/schemashift/schemashift/internal/verify"
)

// Options controls one migration run.
type Options struct {
	// DryRun computes and reports the plan without reaching any mutating
	// call: no backup, no audit rows, no DDL.
	DryRun bool
	// NoBackup skips the pre-migration dump. Discouraged; logged as a
	// warning.
	NoBackup bool
}

// Guard is the pre-write safety gate.
type Guard interface {
	Check(ctx context.Context, expectedDB string, targets []string) error
}

// Backup triggers the external dump.
type Backup interface {
	Dump(ctx context.Context, runID string) (string, error)
}

// Applier runs plans transactionally and tracks run state.
type Applier interface {
	Apply(ctx context.Context, p *plan.Plan) error
	MarkPlanned()
	MarkVerified()
	State() executor.State
}

// Verifier runs the post-commit checks.
type Verifier interface {
	Check(ctx context.Context, targets []string) (*verify.Result, error)
}

// Snapshotter provides the live schema state.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*inspect.Snapshot, error)
}

// Locker provides mutual exclusion between runs.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Rollbacker applies the inverse plan.
type Rollbacker interface {
	Execute(ctx context.Context, forward *plan.Plan) (*rollback.Result, error)
}

// Deps are the engine's collaborators, injected for testability.
type Deps struct {
	Guard       Guard
	Backup      Backup
	Planner     *plan.Planner
	Applier     Applier
	Verifier    Verifier
	Snapshotter Snapshotter
	Locker      Locker
	Rollbacker  Rollbacker
	Auditor     *audit.Logger
}

// Result is the outcome of one run, consumed by the report renderer.
type Result struct {
	RunID        string
	DryRun       bool
	Plan         *plan.Plan
	BackupPath   string
	Verification *verify.Result
	State        executor.State
}

// Engine is the migration orchestrator.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string
	deps   Deps
}

// New creates an Engine for one run.
func New(cfg *config.Config, logger *slog.Logger, runID string, deps Deps) *Engine {
	return &Engine{cfg: cfg, logger: logger, runID: runID, deps: deps}
}

// Migrate runs the forward migration end to end.
func (e *Engine) Migrate(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{RunID: e.runID, DryRun: opts.DryRun}

	release, err := e.deps.Locker.Acquire(ctx, e.cfg.Migration.LockKey)
	if err != nil {
		return result, err
	}
	defer release()

	snap, err := e.deps.Snapshotter.Snapshot(ctx)
	if err != nil {
		return result, fmt.Errorf("taking schema snapshot: %w", err)
	}

	p, err := e.deps.Planner.Build(snap)
	if err != nil {
		return result, fmt.Errorf("building migration plan: %w", err)
	}
	result.Plan = p
	targets := p.Targets()

	// The safety gate runs before any write, including the backup, so a
	// doomed run wastes no I/O.
	if err := e.deps.Guard.Check(ctx, e.cfg.Migration.ExpectedDatabase, targets); err != nil {
		return result, err
	}
	e.deps.Applier.MarkPlanned()
	result.State = e.deps.Applier.State()

	if opts.DryRun {
		e.logger.Info("dry run: plan computed, no mutations performed",
			"steps", len(p.Steps), "skipped", len(p.Skipped))
		return result, nil
	}

	if p.IsEmpty() {
		e.logger.Info("nothing to do: all sources already migrated")
		return result, nil
	}

	e.deps.Auditor.Record(ctx, audit.ActionMigrationStart, snap.Database, audit.SeverityInfo, map[string]any{
		"run_id":        e.runID,
		"steps":         len(p.Steps),
		"targets":       targets,
		"added_columns": p.AddedColumns(),
	})

	if opts.NoBackup {
		e.logger.Warn("skipping pre-migration backup (--no-backup); the run cannot be restored from a dump")
	} else {
		path, err := e.deps.Backup.Dump(ctx, e.runID)
		if err != nil {
			e.auditFail(ctx, snap.Database, err)
			return result, err
		}
		result.BackupPath = path
	}

	txCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.Migration.TimeoutSeconds)*time.Second)
	defer cancel()

	if err := e.deps.Applier.Apply(txCtx, p); err != nil {
		result.State = e.deps.Applier.State()
		e.auditFail(ctx, snap.Database, err)
		return result, err
	}

	verification, err := e.deps.Verifier.Check(ctx, targets)
	if err != nil {
		// The migration committed; a verifier infrastructure failure is
		// reported but does not undo anything.
		result.State = e.deps.Applier.State()
		e.auditFail(ctx, snap.Database, err)
		return result, fmt.Errorf("verification could not run: %w", err)
	}
	result.Verification = verification

	severity := audit.SeverityInfo
	metadata := map[string]any{"run_id": e.runID, "tables": targets}
	if verification.OK() {
		e.deps.Applier.MarkVerified()
	} else {
		severity = audit.SeverityWarning
		metadata["verification"] = verification.Warning()
		e.logger.Warn(verification.Warning())
	}
	result.State = e.deps.Applier.State()

	e.deps.Auditor.Record(ctx, audit.ActionMigrationComplete, snap.Database, severity, metadata)

	return result, nil
}

// Rollback applies the inverse plan under the same lock. forward may be
// nil when rolling back a previous invocation's migration.
func (e *Engine) Rollback(ctx context.Context, forward *plan.Plan) (*rollback.Result, error) {
	release, err := e.deps.Locker.Acquire(ctx, e.cfg.Migration.LockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	txCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.Migration.TimeoutSeconds)*time.Second)
	defer cancel()

	return e.deps.Rollbacker.Execute(txCtx, forward)
}

func (e *Engine) auditFail(ctx context.Context, database string, cause error) {
	e.deps.Auditor.Record(ctx, audit.ActionMigrationFail, database, audit.SeverityError, map[string]any{
		"run_id": e.runID,
		"error":  cause.Error(),
	})
}
