package plan

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Kind classifies what a rename mapping applies to.
type Kind string

const (
	KindTable      Kind = "table"
	KindIndex      Kind = "index"
	KindConstraint Kind = "constraint"
)

// Mapping is one entry of the static rename table. The inverse operation is
// the same mapping with source and target swapped.
type Mapping struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Kind   Kind   `yaml:"kind"`
}

// ColumnAddition describes a compatibility column added after the renames.
type ColumnAddition struct {
	Table        string `yaml:"table"` // target (post-rename) table name
	Column       string `yaml:"column"`
	Type         string `yaml:"type"`
	Default      string `yaml:"default,omitempty"`
	BackfillFrom string `yaml:"backfill_from,omitempty"`
}

// Step is a single typed migration operation. Each step renders to exactly
// one SQL statement; identifier quoting is centralized here so no caller
// builds DDL from raw strings.
type Step interface {
	// SQL renders the statement for the given pg schema.
	SQL(schema string) string
	// Describe returns a one-line human-readable summary.
	Describe() string
	// Invert returns the reverse operation, or false when the step has no
	// automatic inverse (column additions are left for manual review).
	Invert() (Step, bool)
}

// RenameTable renames a table. Foreign keys referencing the table track the
// rename automatically in PostgreSQL.
type RenameTable struct {
	From string
	To   string
}

func (s RenameTable) SQL(schema string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		pgx.Identifier{schema, s.From}.Sanitize(), pgx.Identifier{s.To}.Sanitize())
}

func (s RenameTable) Describe() string {
	return fmt.Sprintf("rename table %s -> %s", s.From, s.To)
}

func (s RenameTable) Invert() (Step, bool) {
	return RenameTable{From: s.To, To: s.From}, true
}

// RenameConstraint renames a constraint on a table. Table is the name the
// table carries at the time the step executes.
type RenameConstraint struct {
	Table string
	From  string
	To    string
}

func (s RenameConstraint) SQL(schema string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
		pgx.Identifier{schema, s.Table}.Sanitize(),
		pgx.Identifier{s.From}.Sanitize(), pgx.Identifier{s.To}.Sanitize())
}

func (s RenameConstraint) Describe() string {
	return fmt.Sprintf("rename constraint %s -> %s on %s", s.From, s.To, s.Table)
}

func (s RenameConstraint) Invert() (Step, bool) {
	return RenameConstraint{Table: s.Table, From: s.To, To: s.From}, true
}

// RenameIndex renames an index.
type RenameIndex struct {
	From string
	To   string
}

func (s RenameIndex) SQL(schema string) string {
	return fmt.Sprintf("ALTER INDEX %s RENAME TO %s",
		pgx.Identifier{schema, s.From}.Sanitize(), pgx.Identifier{s.To}.Sanitize())
}

func (s RenameIndex) Describe() string {
	return fmt.Sprintf("rename index %s -> %s", s.From, s.To)
}

func (s RenameIndex) Invert() (Step, bool) {
	return RenameIndex{From: s.To, To: s.From}, true
}

// AddColumn adds a compatibility column. IF NOT EXISTS keeps the statement
// idempotent even if the plan-time existence check raced another writer.
// Type and Default come from the operator's config, not user input.
type AddColumn struct {
	Table   string
	Column  string
	Type    string
	Default string
}

func (s AddColumn) SQL(schema string) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		pgx.Identifier{schema, s.Table}.Sanitize(),
		pgx.Identifier{s.Column}.Sanitize(), s.Type)
	if s.Default != "" {
		stmt += " DEFAULT " + s.Default
	}
	return stmt
}

func (s AddColumn) Describe() string {
	return fmt.Sprintf("add column %s.%s (%s)", s.Table, s.Column, s.Type)
}

// Invert returns false: whether the column pre-existed the migration is
// ambiguous without a migration-scoped marker, so dropping it automatically
// is unsafe. Rollback flags it for manual review instead.
func (s AddColumn) Invert() (Step, bool) {
	return nil, false
}

// SetColumnDefault attaches a default to an existing column. Emitted after
// a backfill: adding the column with the default up front would fill every
// existing row non-NULL and starve the backfill's IS NULL guard.
type SetColumnDefault struct {
	Table   string
	Column  string
	Default string
}

func (s SetColumnDefault) SQL(schema string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
		pgx.Identifier{schema, s.Table}.Sanitize(),
		pgx.Identifier{s.Column}.Sanitize(), s.Default)
}

func (s SetColumnDefault) Describe() string {
	return fmt.Sprintf("set default %s on %s.%s", s.Default, s.Table, s.Column)
}

func (s SetColumnDefault) Invert() (Step, bool) {
	return nil, false
}

// BackfillColumn copies values from a legacy column into a freshly added
// one, touching only rows where the new column is still NULL.
type BackfillColumn struct {
	Table  string
	Column string
	From   string
}

func (s BackfillColumn) SQL(schema string) string {
	col := pgx.Identifier{s.Column}.Sanitize()
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
		pgx.Identifier{schema, s.Table}.Sanitize(), col,
		pgx.Identifier{s.From}.Sanitize(), col)
}

func (s BackfillColumn) Describe() string {
	return fmt.Sprintf("backfill %s.%s from %s", s.Table, s.Column, s.From)
}

func (s BackfillColumn) Invert() (Step, bool) {
	return nil, false
}
