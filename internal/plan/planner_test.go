package plan

import (
	"reflect"
	"strings"
	"testing"

	"github.com/schemashift/schemashift/internal/inspect"
)

// cmsSnapshot models the pre-migration CMS schema.
func cmsSnapshot() *inspect.Snapshot {
	return &inspect.Snapshot{
		Database: "cmsdb",
		Schema:   "public",
		Tables: []inspect.TableDescriptor{
			{
				Name: "User", Schema: "public",
				Columns:      []string{"id", "email", "legacy_role"},
				PrimaryKey:   "User_pkey",
				Indexes:      []string{"User_email_idx"},
				HasIndexes:   true,
				ReferencedBy: 3,
			},
			{
				Name: "Page", Schema: "public",
				Columns:      []string{"id", "slug", "updated_at"},
				PrimaryKey:   "Page_pkey",
				Indexes:      []string{"Page_slug_idx"},
				HasIndexes:   true,
				ReferencedBy: 1,
			},
		},
	}
}

func testMappings() []Mapping {
	// Page deliberately declared first; User must still rename first because
	// it is the most-referenced table.
	return []Mapping{
		{Source: "Page", Target: "pages", Kind: KindTable},
		{Source: "User", Target: "users", Kind: KindTable},
	}
}

func testColumns() []ColumnAddition {
	return []ColumnAddition{
		{Table: "users", Column: "role", Type: "text", Default: "'USER'", BackfillFrom: "legacy_role"},
	}
}

func TestBuildOrdering(t *testing.T) {
	p := NewPlanner(testMappings(), testColumns())
	plan, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, s := range plan.Steps {
		got = append(got, s.Describe())
	}
	want := []string{
		"rename table User -> users",
		"rename table Page -> pages",
		"rename constraint User_pkey -> users_pkey on users",
		"rename constraint Page_pkey -> pages_pkey on pages",
		"rename index User_email_idx -> users_email_idx",
		"rename index Page_slug_idx -> pages_slug_idx",
		"add column users.role (text)",
		"backfill users.role from legacy_role",
		"set default 'USER' on users.role",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("plan order mismatch:\n got: %v\nwant: %v", got, want)
	}
}

// A column that is both defaulted and backfilled must be added without the
// default: ADD COLUMN with a default fills every existing row, so the
// backfill's IS NULL guard would match nothing and the legacy values would
// never be copied. The default is attached only after the backfill ran.
func TestBackfilledColumnDefaultAppliedAfterBackfill(t *testing.T) {
	p := NewPlanner(DefaultMappings(), DefaultColumns())
	plan, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var addSQL, backfillSQL, defaultSQL string
	addIdx, backfillIdx, defaultIdx := -1, -1, -1
	for i, s := range plan.Steps {
		switch st := s.(type) {
		case AddColumn:
			if st.Table == "users" && st.Column == "role" {
				addSQL, addIdx = st.SQL("public"), i
			}
		case BackfillColumn:
			if st.Table == "users" {
				backfillSQL, backfillIdx = st.SQL("public"), i
			}
		case SetColumnDefault:
			if st.Table == "users" {
				defaultSQL, defaultIdx = st.SQL("public"), i
			}
		}
	}

	if addIdx < 0 || backfillIdx < 0 || defaultIdx < 0 {
		t.Fatalf("missing column steps in plan (add=%d backfill=%d default=%d)", addIdx, backfillIdx, defaultIdx)
	}
	if strings.Contains(addSQL, "DEFAULT") {
		t.Errorf("backfilled column added with a default, which pre-fills existing rows: %s", addSQL)
	}
	if !(addIdx < backfillIdx && backfillIdx < defaultIdx) {
		t.Errorf("step order add=%d backfill=%d default=%d, want add < backfill < default", addIdx, backfillIdx, defaultIdx)
	}
	if want := `UPDATE "public"."users" SET "role" = "legacy_role" WHERE "role" IS NULL`; backfillSQL != want {
		t.Errorf("backfill SQL = %s, want %s", backfillSQL, want)
	}
	if want := `ALTER TABLE "public"."users" ALTER COLUMN "role" SET DEFAULT 'USER'`; defaultSQL != want {
		t.Errorf("set default SQL = %s, want %s", defaultSQL, want)
	}
}

// Without a backfill source the default stays on the ADD COLUMN itself.
func TestDefaultWithoutBackfillStaysOnAdd(t *testing.T) {
	columns := []ColumnAddition{
		{Table: "users", Column: "role", Type: "text", Default: "'USER'"},
	}
	p := NewPlanner(testMappings(), columns)
	plan, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, s := range plan.Steps {
		switch st := s.(type) {
		case AddColumn:
			if !strings.Contains(st.SQL("public"), "DEFAULT 'USER'") {
				t.Errorf("default missing from add: %s", st.SQL("public"))
			}
		case SetColumnDefault:
			t.Errorf("unexpected set-default step without a backfill: %s", st.Describe())
		}
	}
}

func TestBuildSkipsAbsentSources(t *testing.T) {
	mappings := append(testMappings(), Mapping{Source: "Ghost", Target: "ghosts", Kind: KindTable})
	p := NewPlanner(mappings, nil)
	plan, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Targets()) != 2 {
		t.Errorf("expected 2 table renames, got %d", len(plan.Targets()))
	}

	found := false
	for _, s := range plan.Skipped {
		if s.Name == "Ghost" && s.Reason == "source table not found" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a skip record for Ghost, got %+v", plan.Skipped)
	}
}

func TestSecondRunPlansNothing(t *testing.T) {
	// Post-migration snapshot: sources already renamed, column in place.
	snap := &inspect.Snapshot{
		Database: "cmsdb",
		Schema:   "public",
		Tables: []inspect.TableDescriptor{
			{Name: "users", Schema: "public", Columns: []string{"id", "email", "legacy_role", "role"}, PrimaryKey: "users_pkey", Indexes: []string{"users_email_idx"}},
			{Name: "pages", Schema: "public", Columns: []string{"id", "slug", "updated_at"}, PrimaryKey: "pages_pkey", Indexes: []string{"pages_slug_idx"}},
		},
	}

	p := NewPlanner(testMappings(), testColumns())
	plan, err := p.Build(snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !plan.IsEmpty() {
		for _, s := range plan.Steps {
			t.Logf("unexpected step: %s", s.Describe())
		}
		t.Fatal("expected an empty plan on the second run")
	}
	if len(plan.Skipped) == 0 {
		t.Error("expected skip records explaining the empty plan")
	}
}

func TestInverseSwapsAndReverses(t *testing.T) {
	p := NewPlanner(testMappings(), testColumns())
	forward, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv := forward.Inverse()

	var got []string
	for _, s := range inv.Steps {
		got = append(got, s.Describe())
	}
	want := []string{
		"rename index pages_slug_idx -> Page_slug_idx",
		"rename index users_email_idx -> User_email_idx",
		"rename constraint pages_pkey -> Page_pkey on pages",
		"rename constraint users_pkey -> User_pkey on users",
		"rename table pages -> Page",
		"rename table users -> User",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("inverse plan mismatch:\n got: %v\nwant: %v", got, want)
	}
}

func TestInverseDropsColumnAdditions(t *testing.T) {
	p := NewPlanner(testMappings(), testColumns())
	forward, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, s := range forward.Inverse().Steps {
		switch s.(type) {
		case AddColumn, BackfillColumn, SetColumnDefault:
			t.Errorf("column step %s must not appear in an inverse plan", s.Describe())
		}
	}
}

func TestBuildRecordsUnmatchedPrefix(t *testing.T) {
	snap := cmsSnapshot()
	// An index that does not carry the table-name prefix cannot be renamed
	// by pattern; it must be skipped, not guessed.
	snap.Tables[0].Indexes = append(snap.Tables[0].Indexes, "odd_lookup_idx")

	p := NewPlanner(testMappings(), nil)
	plan, err := p.Build(snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, s := range plan.Skipped {
		if s.Name == "odd_lookup_idx" && s.Kind == KindIndex {
			found = true
		}
	}
	if !found {
		t.Errorf("expected skip for odd_lookup_idx, got %+v", plan.Skipped)
	}
}

func TestExplicitIndexAndConstraintMappings(t *testing.T) {
	mappings := append(testMappings(),
		Mapping{Source: "User_email_idx", Target: "idx_users_email", Kind: KindIndex},
		Mapping{Source: "Page_pkey", Target: "pk_pages", Kind: KindConstraint},
	)
	p := NewPlanner(mappings, nil)
	plan, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var haveIdx, haveCon bool
	for _, s := range plan.Steps {
		switch st := s.(type) {
		case RenameIndex:
			if st.From == "User_email_idx" && st.To == "idx_users_email" {
				haveIdx = true
			}
		case RenameConstraint:
			if st.From == "Page_pkey" && st.To == "pk_pages" && st.Table == "pages" {
				haveCon = true
			}
		}
	}
	if !haveIdx {
		t.Error("explicit index mapping missing from plan")
	}
	if !haveCon {
		t.Error("explicit constraint mapping missing from plan")
	}
}

func TestTableTargetsExcludesIndexAndConstraintKinds(t *testing.T) {
	mappings := []Mapping{
		{Source: "User", Target: "users", Kind: KindTable},
		{Source: "User_email_idx", Target: "users_email_idx", Kind: KindIndex},
		{Source: "User_pkey", Target: "users_pkey", Kind: KindConstraint},
		{Source: "Page", Target: "pages"}, // empty kind defaults to table
	}

	got := TableTargets(mappings)
	if !reflect.DeepEqual(got, []string{"users", "pages"}) {
		t.Errorf("TableTargets = %v, want [users pages]", got)
	}
}

func TestAddedColumnsAndTargets(t *testing.T) {
	p := NewPlanner(testMappings(), testColumns())
	plan, err := p.Build(cmsSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := plan.Targets(); !reflect.DeepEqual(got, []string{"users", "pages"}) {
		t.Errorf("unexpected targets: %v", got)
	}
	if got := plan.AddedColumns(); !reflect.DeepEqual(got, []string{"users.role"}) {
		t.Errorf("unexpected added columns: %v", got)
	}
}
