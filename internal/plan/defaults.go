package plan

import "github.com/schemashift/schemashift/internal/config"

// DefaultMappings is the static rename table for the CMS schema: Prisma's
// PascalCase model tables move to snake_case plurals. User goes first in
// declaration order; it is also the most-referenced table, so it renames
// first regardless of ties.
func DefaultMappings() []Mapping {
	return []Mapping{
		{Source: "User", Target: "users", Kind: KindTable},
		{Source: "Page", Target: "pages", Kind: KindTable},
		{Source: "Post", Target: "posts", Kind: KindTable},
		{Source: "Media", Target: "media", Kind: KindTable},
		{Source: "Setting", Target: "settings", Kind: KindTable},
	}
}

// DefaultColumns are the compatibility columns the dependent service reads
// after the rename.
func DefaultColumns() []ColumnAddition {
	return []ColumnAddition{
		{Table: "users", Column: "role", Type: "text", Default: "'USER'", BackfillFrom: "legacy_role"},
		{Table: "pages", Column: "published_at", Type: "timestamptz", BackfillFrom: "updated_at"},
	}
}

// FromConfig converts config overrides into the planner's types, falling
// back to the built-in mapping table when the config carries none.
func FromConfig(mc config.MigrationConfig) ([]Mapping, []ColumnAddition) {
	mappings := DefaultMappings()
	if len(mc.Renames) > 0 {
		mappings = make([]Mapping, 0, len(mc.Renames))
		for _, r := range mc.Renames {
			kind := Kind(r.Kind)
			if kind == "" {
				kind = KindTable
			}
			mappings = append(mappings, Mapping{Source: r.Source, Target: r.Target, Kind: kind})
		}
	}

	columns := DefaultColumns()
	if len(mc.Columns) > 0 {
		columns = make([]ColumnAddition, 0, len(mc.Columns))
		for _, c := range mc.Columns {
			columns = append(columns, ColumnAddition{
				Table: c.Table, Column: c.Column, Type: c.Type,
				Default: c.Default, BackfillFrom: c.BackfillFrom,
			})
		}
	}

	return mappings, columns
}
