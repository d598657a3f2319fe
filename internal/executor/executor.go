// Package executor applies a migration plan inside one atomic transaction.
// There is no per-statement continue-on-error mode: the first failure aborts
// the whole transaction, so no half-renamed state can persist.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/schemashift/schemashift/internal/plan"
)

// State tracks one run through the migration lifecycle. It lives only in
// the executor's local run; the audit trail reconstructs durable history.
type State int

const (
	StateNotStarted State = iota
	StatePlanned
	StateInProgress
	StateVerified
	StateFailed
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StatePlanned:
		return "planned"
	case StateInProgress:
		return "in_progress"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StepError carries the failing statement's context up to the CLI boundary.
type StepError struct {
	Index int
	Step  string
	SQL   string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Executor applies plans transactionally.
type Executor struct {
	db     Beginner
	schema string
	logger *slog.Logger
	state  State
}

// New creates an Executor for the given pg schema.
func New(db Beginner, schema string, logger *slog.Logger) *Executor {
	if schema == "" {
		schema = "public"
	}
	return &Executor{db: db, schema: schema, logger: logger, state: StateNotStarted}
}

// State returns the current lifecycle state of this run.
func (e *Executor) State() State { return e.state }

// MarkPlanned records that the safety gate passed and a plan exists.
func (e *Executor) MarkPlanned() { e.state = StatePlanned }

// MarkVerified records that post-commit verification passed.
func (e *Executor) MarkVerified() { e.state = StateVerified }

// MarkRolledBack records that the inverse plan was applied.
func (e *Executor) MarkRolledBack() { e.state = StateRolledBack }

// Apply executes every step of the plan inside a single transaction.
// Referential-integrity triggers are suspended for the duration (replica
// mode) so table and constraint renames cannot cascade-fail on foreign key
// lookups mid-operation, and restored before commit. Any step failure rolls
// the transaction back; the database's own atomicity guarantee, not manual
// compensation, restores the pre-migration state.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		e.state = StateFailed
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	e.state = StateInProgress

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SET LOCAL session_replication_role = 'replica'`); err != nil {
		e.state = StateFailed
		return fmt.Errorf("suspending referential integrity checks: %w", err)
	}

	for i, step := range p.Steps {
		stmt := step.SQL(e.schema)
		e.logger.Debug("executing migration step", "step", i+1, "of", len(p.Steps), "sql", stmt)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			e.state = StateFailed
			return &StepError{Index: i, Step: step.Describe(), SQL: stmt, Err: err}
		}
	}

	if _, err := tx.Exec(ctx, `SET LOCAL session_replication_role = 'origin'`); err != nil {
		e.state = StateFailed
		return fmt.Errorf("restoring referential integrity checks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		e.state = StateFailed
		return fmt.Errorf("committing migration transaction: %w", err)
	}
	committed = true

	return nil
}
