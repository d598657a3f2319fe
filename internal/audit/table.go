package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the write surface the table sink needs. *pgxpool.Pool
// satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TableSink appends records to the persistent audit table.
type TableSink struct {
	db    Execer
	table string
}

// NewTableSink creates a sink writing to the named table.
func NewTableSink(db Execer, table string) *TableSink {
	return &TableSink{db: db, table: table}
}

// EnsureTable creates the audit table when it does not exist yet.
func (s *TableSink) EnsureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			action text NOT NULL,
			resource text NOT NULL,
			metadata jsonb,
			severity text NOT NULL,
			created_at timestamptz NOT NULL
		)`, pgx.Identifier{s.table}.Sanitize())
	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensuring audit table %s: %w", s.table, err)
	}
	return nil
}

// Append inserts one record. Records are append-only; there is no update
// or delete path.
func (s *TableSink) Append(ctx context.Context, rec Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling audit metadata: %w", err)
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s (id, action, resource, metadata, severity, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		pgx.Identifier{s.table}.Sanitize())

	if _, err := s.db.Exec(ctx, stmt, rec.ID, string(rec.Action), rec.Resource, metadata, string(rec.Severity), rec.CreatedAt); err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

var _ Sink = (*TableSink)(nil)
