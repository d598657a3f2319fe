package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schemashift/schemashift/internal/inspect"
)

// Skip records a mapping whose source object was absent from the live
// snapshot. Skips are expected on re-runs and are never failures.
type Skip struct {
	Name   string
	Kind   Kind
	Reason string
}

// Plan is an ordered sequence of steps. Invariant: table renames precede
// constraint renames precede index renames precede column additions.
type Plan struct {
	Steps   []Step
	Skipped []Skip
}

// IsEmpty reports whether the plan contains no operations.
func (p *Plan) IsEmpty() bool {
	return len(p.Steps) == 0
}

// Targets returns the post-rename table names the plan produces, in step
// order. Used by the conflict guard and the verifier.
func (p *Plan) Targets() []string {
	var targets []string
	for _, s := range p.Steps {
		if rt, ok := s.(RenameTable); ok {
			targets = append(targets, rt.To)
		}
	}
	return targets
}

// AddedColumns returns the column additions in the plan, for audit metadata
// and the rollback manual-review report.
func (p *Plan) AddedColumns() []string {
	var cols []string
	for _, s := range p.Steps {
		if ac, ok := s.(AddColumn); ok {
			cols = append(cols, ac.Table+"."+ac.Column)
		}
	}
	return cols
}

// Inverse computes the rollback plan: every invertible step reversed, in
// reverse order. Column additions carry no inverse and are dropped.
func (p *Plan) Inverse() *Plan {
	inv := &Plan{}
	for i := len(p.Steps) - 1; i >= 0; i-- {
		step, ok := p.Steps[i].Invert()
		if !ok {
			continue
		}
		inv.Steps = append(inv.Steps, step)
	}
	return inv
}

// TableTargets returns the target table names of the table-kind mappings,
// in declaration order. Index and constraint renames do not name queryable
// relations and are excluded.
func TableTargets(mappings []Mapping) []string {
	var targets []string
	for _, m := range mappings {
		if m.Kind == KindTable || m.Kind == "" {
			targets = append(targets, m.Target)
		}
	}
	return targets
}

// Planner builds a MigrationPlan from the static mapping table and a live
// schema snapshot.
type Planner struct {
	mappings []Mapping
	columns  []ColumnAddition
}

// NewPlanner creates a Planner over the given mapping table.
func NewPlanner(mappings []Mapping, columns []ColumnAddition) *Planner {
	return &Planner{mappings: mappings, columns: columns}
}

// Build emits a plan containing only operations whose source object exists
// in the snapshot. Absent sources are recorded as skips, keeping repeated
// runs idempotent: a second forward run plans zero operations.
//
// Table renames are ordered most-referenced first. Other tables' foreign
// keys track a renamed referent automatically, so this ordering only
// narrows the window where readers could mix old and new names; ties keep
// the literal declaration order of the mapping table.
func (p *Planner) Build(snap *inspect.Snapshot) (*Plan, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil schema snapshot")
	}

	plan := &Plan{}

	tableMappings := p.orderedTableMappings(snap)

	// A mapping whose target already exists is NOT skipped here: if its
	// source is also present the run must abort, and that call is the
	// conflict guard's, made on the planned targets before any write.
	var applied []Mapping
	for _, m := range tableMappings {
		if !snap.HasTable(m.Source) {
			plan.Skipped = append(plan.Skipped, Skip{
				Name: m.Source, Kind: KindTable, Reason: "source table not found",
			})
			continue
		}
		plan.Steps = append(plan.Steps, RenameTable{From: m.Source, To: m.Target})
		applied = append(applied, m)
	}

	p.planConstraintRenames(snap, plan, applied)
	p.planIndexRenames(snap, plan, applied)
	p.planColumnAdditions(snap, plan)

	return plan, nil
}

// orderedTableMappings returns the table-kind mappings sorted so the most
// FK-referenced source renames first, preserving declaration order on ties.
func (p *Planner) orderedTableMappings(snap *inspect.Snapshot) []Mapping {
	var tables []Mapping
	for _, m := range p.mappings {
		if m.Kind == KindTable || m.Kind == "" {
			tables = append(tables, m)
		}
	}

	sort.SliceStable(tables, func(a, b int) bool {
		ta, _ := snap.Table(tables[a].Source)
		tb, _ := snap.Table(tables[b].Source)
		var ra, rb int
		if ta != nil {
			ra = ta.ReferencedBy
		}
		if tb != nil {
			rb = tb.ReferencedBy
		}
		return ra > rb
	})
	return tables
}

// planConstraintRenames renames each renamed table's primary key constraint
// by swapping the old table-name prefix for the new one, then applies any
// explicit constraint mappings.
func (p *Planner) planConstraintRenames(snap *inspect.Snapshot, plan *Plan, applied []Mapping) {
	for _, m := range applied {
		td, _ := snap.Table(m.Source)
		if td == nil || td.PrimaryKey == "" {
			continue
		}
		renamed, ok := rewritePrefix(td.PrimaryKey, m.Source, m.Target)
		if !ok {
			plan.Skipped = append(plan.Skipped, Skip{
				Name: td.PrimaryKey, Kind: KindConstraint,
				Reason: fmt.Sprintf("constraint name does not carry the %s prefix", m.Source),
			})
			continue
		}
		// The table already carries its target name when this step runs.
		plan.Steps = append(plan.Steps, RenameConstraint{
			Table: m.Target, From: td.PrimaryKey, To: renamed,
		})
	}

	for _, m := range p.mappings {
		if m.Kind != KindConstraint {
			continue
		}
		owner, ok := constraintOwner(snap, applied, m.Source)
		if !ok {
			plan.Skipped = append(plan.Skipped, Skip{
				Name: m.Source, Kind: KindConstraint, Reason: "constraint not found",
			})
			continue
		}
		plan.Steps = append(plan.Steps, RenameConstraint{
			Table: owner, From: m.Source, To: m.Target,
		})
	}
}

// planIndexRenames renames each renamed table's dependent indexes by
// prefix substitution, then applies any explicit index mappings.
func (p *Planner) planIndexRenames(snap *inspect.Snapshot, plan *Plan, applied []Mapping) {
	for _, m := range applied {
		td, _ := snap.Table(m.Source)
		if td == nil {
			continue
		}
		for _, idx := range td.Indexes {
			renamed, ok := rewritePrefix(idx, m.Source, m.Target)
			if !ok {
				plan.Skipped = append(plan.Skipped, Skip{
					Name: idx, Kind: KindIndex,
					Reason: fmt.Sprintf("index name does not carry the %s prefix", m.Source),
				})
				continue
			}
			plan.Steps = append(plan.Steps, RenameIndex{From: idx, To: renamed})
		}
	}

	for _, m := range p.mappings {
		if m.Kind != KindIndex {
			continue
		}
		if !indexExists(snap, m.Source) {
			plan.Skipped = append(plan.Skipped, Skip{
				Name: m.Source, Kind: KindIndex, Reason: "index not found",
			})
			continue
		}
		plan.Steps = append(plan.Steps, RenameIndex{From: m.Source, To: m.Target})
	}
}

// planColumnAdditions appends column additions, their backfills, and any
// post-backfill defaults. The addition names the post-rename table; at plan
// time the live table may still carry its source name, so both are
// consulted.
//
// A backfilled column is added WITHOUT its default: ADD COLUMN with a
// default fills every existing row non-NULL, which would leave the
// backfill's IS NULL guard nothing to copy into. The default is attached
// after the backfill instead.
func (p *Planner) planColumnAdditions(snap *inspect.Snapshot, plan *Plan) {
	var backfills, defaults []Step

	for _, c := range p.columns {
		td := p.resolveColumnTable(snap, c.Table)
		if td == nil {
			plan.Skipped = append(plan.Skipped, Skip{
				Name: c.Table + "." + c.Column, Kind: KindTable,
				Reason: "table not found for column addition",
			})
			continue
		}
		if td.HasColumn(c.Column) {
			plan.Skipped = append(plan.Skipped, Skip{
				Name: c.Table + "." + c.Column, Kind: KindTable,
				Reason: "column already exists",
			})
			continue
		}

		add := AddColumn{Table: c.Table, Column: c.Column, Type: c.Type, Default: c.Default}
		if c.BackfillFrom != "" && td.HasColumn(c.BackfillFrom) {
			add.Default = ""
			backfills = append(backfills, BackfillColumn{
				Table: c.Table, Column: c.Column, From: c.BackfillFrom,
			})
			if c.Default != "" {
				defaults = append(defaults, SetColumnDefault{
					Table: c.Table, Column: c.Column, Default: c.Default,
				})
			}
		}
		plan.Steps = append(plan.Steps, add)
	}

	plan.Steps = append(plan.Steps, backfills...)
	plan.Steps = append(plan.Steps, defaults...)
}

// resolveColumnTable finds the live descriptor for a post-rename table
// name, looking through the mapping table when the rename has not yet run.
func (p *Planner) resolveColumnTable(snap *inspect.Snapshot, target string) *inspect.TableDescriptor {
	if td, ok := snap.Table(target); ok {
		return td
	}
	for _, m := range p.mappings {
		if (m.Kind == KindTable || m.Kind == "") && m.Target == target {
			if td, ok := snap.Table(m.Source); ok {
				return td
			}
		}
	}
	return nil
}

// rewritePrefix swaps the leading table-name prefix of a dependent object
// name, e.g. User_email_idx -> users_email_idx. The bare name (User_pkey
// style always has a suffix, but an index named exactly after the table
// does happen) is rewritten too.
func rewritePrefix(name, oldPrefix, newPrefix string) (string, bool) {
	if name == oldPrefix {
		return newPrefix, true
	}
	if strings.HasPrefix(name, oldPrefix+"_") {
		return newPrefix + strings.TrimPrefix(name, oldPrefix), true
	}
	return "", false
}

func constraintOwner(snap *inspect.Snapshot, applied []Mapping, constraint string) (string, bool) {
	for i := range snap.Tables {
		td := &snap.Tables[i]
		if td.PrimaryKey != constraint {
			continue
		}
		// Report the name the table carries once prior steps have run.
		for _, m := range applied {
			if m.Source == td.Name {
				return m.Target, true
			}
		}
		return td.Name, true
	}
	return "", false
}

func indexExists(snap *inspect.Snapshot, name string) bool {
	for i := range snap.Tables {
		for _, idx := range snap.Tables[i].Indexes {
			if idx == name {
				return true
			}
		}
	}
	return false
}
