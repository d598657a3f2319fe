package inspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool the inspector needs. Injected so
// tests can run against a fake or a transactional test database.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TableDescriptor is a read-only snapshot of one table's state. Descriptors
// are created per invocation and discarded after planning.
type TableDescriptor struct {
	Name               string
	Schema             string
	Columns            []string
	PrimaryKey         string // primary key constraint name, empty if none
	Indexes            []string
	HasIndexes         bool
	HasTriggers        bool
	RowSecurityEnabled bool
	ReferencedBy       int // number of foreign keys pointing at this table
}

// HasColumn reports whether the table has the named column.
func (t *TableDescriptor) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Snapshot is the live schema state at one point in time.
type Snapshot struct {
	Database string
	Schema   string
	Tables   []TableDescriptor
}

// Table returns the descriptor for the named table, if present.
func (s *Snapshot) Table(name string) (*TableDescriptor, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// HasTable reports whether the snapshot contains the named table.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.Table(name)
	return ok
}

// Inspector runs read-only queries against the live database. It never
// mutates state.
type Inspector struct {
	db     Querier
	schema string
}

// New creates an Inspector over the given connection for one pg schema.
func New(db Querier, schema string) *Inspector {
	if schema == "" {
		schema = "public"
	}
	return &Inspector{db: db, schema: schema}
}

// CurrentDatabase reads the active database name from the connection itself.
func (i *Inspector) CurrentDatabase(ctx context.Context) (string, error) {
	var name string
	if err := i.db.QueryRow(ctx, `SELECT current_database()`).Scan(&name); err != nil {
		return "", fmt.Errorf("reading current database: %w", err)
	}
	return name, nil
}

// Snapshot captures the current table/index/constraint state of the schema.
func (i *Inspector) Snapshot(ctx context.Context) (*Snapshot, error) {
	db, err := i.CurrentDatabase(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := i.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	tableMap := make(map[string]*TableDescriptor, len(tables))
	for idx := range tables {
		tableMap[tables[idx].Name] = &tables[idx]
	}

	if err := i.fillColumns(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	if err := i.fillPrimaryKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("listing primary keys: %w", err)
	}
	if err := i.fillIndexes(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	if err := i.fillReferenceCounts(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("counting foreign key references: %w", err)
	}

	return &Snapshot{
		Database: db,
		Schema:   i.schema,
		Tables:   tables,
	}, nil
}

// TableExists reports whether the named table exists in the schema.
func (i *Inspector) TableExists(ctx context.Context, name string) (bool, error) {
	regclass := pgx.Identifier{i.schema, name}.Sanitize()
	var exists bool
	err := i.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, regclass).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return exists, nil
}

// CountRows runs a trivial COUNT against the table, confirming it is not
// just present but unlocked and readable.
func (i *Inspector) CountRows(ctx context.Context, name string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pgx.Identifier{i.schema, name}.Sanitize())
	var count int64
	if err := i.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", name, err)
	}
	return count, nil
}

func (i *Inspector) listTables(ctx context.Context) ([]TableDescriptor, error) {
	query := `
		SELECT
			c.relname AS table_name,
			c.relhasindex,
			c.relhastriggers,
			c.relrowsecurity
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := i.db.Query(ctx, query, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []TableDescriptor
	for rows.Next() {
		t := TableDescriptor{Schema: i.schema}
		if err := rows.Scan(&t.Name, &t.HasIndexes, &t.HasTriggers, &t.RowSecurityEnabled); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (i *Inspector) fillColumns(ctx context.Context, tableMap map[string]*TableDescriptor) error {
	query := `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	rows, err := i.db.Query(ctx, query, i.schema, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName string
		if err := rows.Scan(&tableName, &colName); err != nil {
			return err
		}
		if t, ok := tableMap[tableName]; ok {
			t.Columns = append(t.Columns, colName)
		}
	}
	return rows.Err()
}

func (i *Inspector) fillPrimaryKeys(ctx context.Context, tableMap map[string]*TableDescriptor) error {
	query := `
		SELECT tc.table_name, tc.constraint_name
		FROM information_schema.table_constraints tc
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)`

	rows, err := i.db.Query(ctx, query, i.schema, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName string
		if err := rows.Scan(&tableName, &constraintName); err != nil {
			return err
		}
		if t, ok := tableMap[tableName]; ok {
			t.PrimaryKey = constraintName
		}
	}
	return rows.Err()
}

// fillIndexes collects non-primary-key index names per table.
func (i *Inspector) fillIndexes(ctx context.Context, tableMap map[string]*TableDescriptor) error {
	query := `
		SELECT t.relname AS table_name, i.relname AS index_name
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1
		  AND t.relname = ANY($2)
		  AND NOT ix.indisprimary
		ORDER BY t.relname, i.relname`

	rows, err := i.db.Query(ctx, query, i.schema, tableNames(tableMap))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, indexName string
		if err := rows.Scan(&tableName, &indexName); err != nil {
			return err
		}
		if t, ok := tableMap[tableName]; ok {
			t.Indexes = append(t.Indexes, indexName)
		}
	}
	return rows.Err()
}

// fillReferenceCounts counts how many foreign keys reference each table,
// used by the planner to order the most-referenced table first.
func (i *Inspector) fillReferenceCounts(ctx context.Context, tableMap map[string]*TableDescriptor) error {
	query := `
		SELECT ref.relname, COUNT(*)
		FROM pg_constraint con
		JOIN pg_class ref ON ref.oid = con.confrelid
		JOIN pg_namespace n ON n.oid = ref.relnamespace
		WHERE con.contype = 'f'
		  AND n.nspname = $1
		GROUP BY ref.relname`

	rows, err := i.db.Query(ctx, query, i.schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var count int
		if err := rows.Scan(&tableName, &count); err != nil {
			return err
		}
		if t, ok := tableMap[tableName]; ok {
			t.ReferencedBy = count
		}
	}
	return rows.Err()
}

func tableNames(tableMap map[string]*TableDescriptor) []string {
	names := make([]string, 0, len(tableMap))
	for name := range tableMap {
		names = append(names, name)
	}
	return names
}
