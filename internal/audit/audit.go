// Package audit appends structured migration events to a persistent audit
// table and a local file. Audit is observability, not a consistency
// mechanism: a sink failure is logged locally and never blocks the run.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Action labels a phase transition.
type Action string

const (
	ActionMigrationStart    Action = "TABLE_RENAME_MIGRATION_START"
	ActionMigrationComplete Action = "TABLE_RENAME_MIGRATION_COMPLETE"
	ActionMigrationFail     Action = "TABLE_RENAME_MIGRATION_FAIL"
	ActionRollbackStart     Action = "TABLE_RENAME_ROLLBACK_START"
	ActionRollbackComplete  Action = "TABLE_RENAME_ROLLBACK_COMPLETE"
	ActionRollbackFail      Action = "TABLE_RENAME_ROLLBACK_FAIL"
)

// Severity grades a record.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Record is one append-only audit entry. Records are never mutated or
// deleted; one exists per phase transition.
type Record struct {
	ID        string         `json:"id"`
	Action    Action         `json:"action"`
	Resource  string         `json:"resource"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  Severity       `json:"severity"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sink persists audit records. The engine takes it as a capability so it
// can be tested without writing permanent rows.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Logger fans records out to its sinks.
type Logger struct {
	sinks    []Sink
	fallback *slog.Logger
}

// NewLogger creates an audit logger. Sink failures are reported through
// fallback and otherwise swallowed.
func NewLogger(fallback *slog.Logger, sinks ...Sink) *Logger {
	return &Logger{sinks: sinks, fallback: fallback}
}

// Record appends one entry for a phase transition and returns it.
func (l *Logger) Record(ctx context.Context, action Action, resource string, severity Severity, metadata map[string]any) Record {
	rec := Record{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}

	for _, sink := range l.sinks {
		if err := sink.Append(ctx, rec); err != nil {
			l.fallback.Error("writing audit record failed", "action", string(action), "error", err)
		}
	}

	return rec
}
