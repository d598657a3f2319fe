package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/schemashift/schemashift/internal/plan"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPlan() *plan.Plan {
	return &plan.Plan{Steps: []plan.Step{
		plan.RenameTable{From: "User", To: "users"},
		plan.RenameConstraint{Table: "users", From: "User_pkey", To: "users_pkey"},
		plan.RenameIndex{From: "User_email_idx", To: "users_email_idx"},
		plan.AddColumn{Table: "users", Column: "role", Type: "text", Default: "'USER'"},
	}}
}

func TestApplyCommitsAllSteps(t *testing.T) {
	db := &MockDB{}
	e := New(db, "public", discard())

	if err := e.Apply(context.Background(), testPlan()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx := db.Tx
	if !tx.Committed {
		t.Fatal("transaction not committed")
	}
	if tx.RolledBack {
		t.Fatal("transaction should not roll back on success")
	}

	// replica mode bookends the plan steps
	if len(tx.Statements) != len(testPlan().Steps)+2 {
		t.Fatalf("expected %d statements, got %d: %v", len(testPlan().Steps)+2, len(tx.Statements), tx.Statements)
	}
	if !strings.Contains(tx.Statements[0], "session_replication_role = 'replica'") {
		t.Errorf("first statement must suspend integrity checks: %s", tx.Statements[0])
	}
	last := tx.Statements[len(tx.Statements)-1]
	if !strings.Contains(last, "session_replication_role = 'origin'") {
		t.Errorf("last statement must restore integrity checks: %s", last)
	}

	if e.State() != StateInProgress {
		t.Errorf("expected in_progress until verification, got %s", e.State())
	}
}

func TestApplyAbortsWholeTransactionOnStepFailure(t *testing.T) {
	db := &MockDB{Tx: &MockTx{FailOn: "RENAME CONSTRAINT", ExecErr: errors.New("constraint collision")}}
	e := New(db, "public", discard())

	err := e.Apply(context.Background(), testPlan())
	if err == nil {
		t.Fatal("expected an error")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %T: %v", err, err)
	}
	if stepErr.Index != 1 {
		t.Errorf("expected failure at step index 1, got %d", stepErr.Index)
	}
	if !strings.Contains(stepErr.SQL, "RENAME CONSTRAINT") {
		t.Errorf("failing statement missing from error: %s", stepErr.SQL)
	}

	if db.Tx.Committed {
		t.Fatal("failed run must not commit")
	}
	if !db.Tx.RolledBack {
		t.Fatal("failed run must roll back")
	}
	if e.State() != StateFailed {
		t.Errorf("expected failed state, got %s", e.State())
	}
}

func TestApplyBeginFailure(t *testing.T) {
	db := &MockDB{BeginErr: errors.New("too many connections")}
	e := New(db, "public", discard())

	if err := e.Apply(context.Background(), testPlan()); err == nil {
		t.Fatal("expected an error")
	}
	if e.State() != StateFailed {
		t.Errorf("expected failed state, got %s", e.State())
	}
}

func TestStateMachine(t *testing.T) {
	e := New(&MockDB{}, "public", discard())
	if e.State() != StateNotStarted {
		t.Fatalf("expected not_started, got %s", e.State())
	}

	e.MarkPlanned()
	if e.State() != StatePlanned {
		t.Fatalf("expected planned, got %s", e.State())
	}

	if err := e.Apply(context.Background(), testPlan()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.MarkVerified()
	if e.State() != StateVerified {
		t.Fatalf("expected verified, got %s", e.State())
	}
}

func TestStepErrorUnwraps(t *testing.T) {
	cause := errors.New("relation does not exist")
	err := &StepError{Index: 0, Step: "rename table User -> users", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("StepError must unwrap to its cause")
	}
}
