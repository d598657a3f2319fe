// Package rollback restores pre-migration table, constraint and index
// names by applying the inverse plan through the same transactional
// mechanics as the forward migration.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/schemashift/schemashift/internal/audit"
	"github.com/schemashift/schemashift/internal/inspect"
	"github.com/schemashift/schemashift/internal/plan"
)

// ErrTargetMissing means the tables to roll back are not present under
// their migrated names. Rolling back anyway would be guessing; the engine
// aborts before any mutation instead.
var ErrTargetMissing = errors.New("rollback target missing")

// Snapshotter provides the live schema state.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*inspect.Snapshot, error)
}

// Applier runs a plan transactionally. *executor.Executor satisfies it.
type Applier interface {
	Apply(ctx context.Context, p *plan.Plan) error
	MarkRolledBack()
}

// Result holds the outcome of a rollback.
type Result struct {
	RestoredTables []string
	// LeftoverColumns lists compatibility columns the forward migration may
	// have added. Whether each pre-existed is ambiguous without a
	// migration-scoped marker, so they are flagged for manual review, never
	// dropped automatically.
	LeftoverColumns []string
}

// Engine orchestrates a rollback run.
type Engine struct {
	snapshotter Snapshotter
	applier     Applier
	auditor     *audit.Logger
	logger      *slog.Logger
	mappings    []plan.Mapping
	columns     []plan.ColumnAddition
}

// New creates a rollback Engine over the same mapping table the forward
// migration used.
func New(snapshotter Snapshotter, applier Applier, auditor *audit.Logger, logger *slog.Logger, mappings []plan.Mapping, columns []plan.ColumnAddition) *Engine {
	return &Engine{
		snapshotter: snapshotter,
		applier:     applier,
		auditor:     auditor,
		logger:      logger,
		mappings:    mappings,
		columns:     columns,
	}
}

// Execute rolls the rename migration back. When forward is non-nil (same
// invocation as the migration) its exact inverse is applied; otherwise the
// inverse plan is rebuilt from the mapping table against the live snapshot.
// Either way the current names are re-checked against the migrated names
// first.
func (e *Engine) Execute(ctx context.Context, forward *plan.Plan) (*Result, error) {
	snap, err := e.snapshotter.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking schema snapshot: %w", err)
	}

	if err := e.precheck(snap); err != nil {
		return nil, err
	}

	var inverse *plan.Plan
	if forward != nil {
		inverse = forward.Inverse()
	} else {
		inverse, err = plan.NewPlanner(invertMappings(e.mappings), nil).Build(snap)
		if err != nil {
			return nil, fmt.Errorf("building inverse plan: %w", err)
		}
	}

	restored := inverse.Targets()

	e.auditor.Record(ctx, audit.ActionRollbackStart, snap.Database, audit.SeverityWarning, map[string]any{
		"tables": restored,
		"steps":  len(inverse.Steps),
	})

	if err := e.applier.Apply(ctx, inverse); err != nil {
		e.auditor.Record(ctx, audit.ActionRollbackFail, snap.Database, audit.SeverityError, map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("applying inverse plan: %w", err)
	}
	e.applier.MarkRolledBack()

	result := &Result{
		RestoredTables:  restored,
		LeftoverColumns: e.leftoverColumns(snap),
	}

	e.auditor.Record(ctx, audit.ActionRollbackComplete, snap.Database, audit.SeverityInfo, map[string]any{
		"tables":           result.RestoredTables,
		"leftover_columns": result.LeftoverColumns,
	})

	if len(result.LeftoverColumns) > 0 {
		e.logger.Warn("compatibility columns left in place for manual review",
			"columns", strings.Join(result.LeftoverColumns, ", "))
	}

	return result, nil
}

// precheck confirms every migrated table name is present before mutating.
func (e *Engine) precheck(snap *inspect.Snapshot) error {
	var missing []string
	for _, m := range e.mappings {
		if m.Kind != plan.KindTable && m.Kind != "" {
			continue
		}
		if !snap.HasTable(m.Target) {
			missing = append(missing, m.Target)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrTargetMissing, strings.Join(missing, ", "))
	}
	return nil
}

// leftoverColumns reports which compatibility columns exist on the
// migrated tables at rollback time.
func (e *Engine) leftoverColumns(snap *inspect.Snapshot) []string {
	var cols []string
	for _, c := range e.columns {
		if td, ok := snap.Table(c.Table); ok && td.HasColumn(c.Column) {
			cols = append(cols, c.Table+"."+c.Column)
		}
	}
	return cols
}

func invertMappings(mappings []plan.Mapping) []plan.Mapping {
	inverted := make([]plan.Mapping, 0, len(mappings))
	for _, m := range mappings {
		inverted = append(inverted, plan.Mapping{Source: m.Target, Target: m.Source, Kind: m.Kind})
	}
	return inverted
}
