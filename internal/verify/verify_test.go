package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeInspector struct {
	tables    map[string]bool
	countErrs map[string]error
	existsErr error
}

func (f *fakeInspector) TableExists(_ context.Context, name string) (bool, error) {
	return f.tables[name], f.existsErr
}

func (f *fakeInspector) CountRows(_ context.Context, name string) (int64, error) {
	if err := f.countErrs[name]; err != nil {
		return 0, err
	}
	return 42, nil
}

func TestCheckAllTargetsVerify(t *testing.T) {
	v := New(&fakeInspector{tables: map[string]bool{"users": true, "pages": true}})

	result, err := v.Check(context.Background(), []string{"users", "pages"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Errorf("expected clean verification, got %v", result.Issues)
	}
	if result.Checked != 2 {
		t.Errorf("expected 2 checked, got %d", result.Checked)
	}
	if result.Warning() != "" {
		t.Errorf("clean result must render no warning, got %q", result.Warning())
	}
}

func TestCheckReportsMissingTable(t *testing.T) {
	v := New(&fakeInspector{tables: map[string]bool{"users": true}})

	result, err := v.Check(context.Background(), []string{"users", "pages"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() {
		t.Fatal("expected an issue for the missing table")
	}
	if result.Issues[0].Table != "pages" || result.Issues[0].Problem != "missing" {
		t.Errorf("unexpected issue: %+v", result.Issues[0])
	}
	if !strings.Contains(result.Warning(), "pages (missing)") {
		t.Errorf("unexpected warning: %q", result.Warning())
	}
}

func TestCheckReportsUnqueryableTable(t *testing.T) {
	v := New(&fakeInspector{
		tables:    map[string]bool{"users": true},
		countErrs: map[string]error{"users": errors.New("lock timeout")},
	})

	result, err := v.Check(context.Background(), []string{"users"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() {
		t.Fatal("expected an issue for the unqueryable table")
	}
	if result.Issues[0].Problem != "unqueryable" {
		t.Errorf("unexpected issue: %+v", result.Issues[0])
	}
}

func TestCheckInfrastructureError(t *testing.T) {
	v := New(&fakeInspector{existsErr: errors.New("connection reset")})

	if _, err := v.Check(context.Background(), []string{"users"}); err == nil {
		t.Fatal("expected an error when the inspector itself fails")
	}
}
