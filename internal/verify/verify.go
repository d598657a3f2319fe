// Package verify runs the post-transaction checks. A failed check is a
// warning, not a fatal error: the migration already committed, and the
// operator decides whether to accept the state or roll back.
package verify

import (
	"context"
	"fmt"
	"strings"
)

// Inspector is the read-only view the verifier needs.
type Inspector interface {
	TableExists(ctx context.Context, name string) (bool, error)
	CountRows(ctx context.Context, name string) (int64, error)
}

// Issue names one table that failed verification.
type Issue struct {
	Table   string
	Problem string
}

// Result lists the tables that are missing or unqueryable. Empty means the
// migration verified clean.
type Result struct {
	Checked int
	Issues  []Issue
}

// OK reports whether every target verified.
func (r *Result) OK() bool { return len(r.Issues) == 0 }

// Warning renders the issues as a one-line operator summary.
func (r *Result) Warning() string {
	if r.OK() {
		return ""
	}
	parts := make([]string, 0, len(r.Issues))
	for _, i := range r.Issues {
		parts = append(parts, fmt.Sprintf("%s (%s)", i.Table, i.Problem))
	}
	return "verification warning: " + strings.Join(parts, ", ")
}

// Verifier confirms target tables exist and are queryable. It never
// mutates state.
type Verifier struct {
	inspector Inspector
}

// New creates a Verifier over the given inspector.
func New(inspector Inspector) *Verifier {
	return &Verifier{inspector: inspector}
}

// Check confirms each target table exists and answers a trivial COUNT, the
// latter proving the table is not just present but unlocked and readable.
func (v *Verifier) Check(ctx context.Context, targets []string) (*Result, error) {
	result := &Result{Checked: len(targets)}

	for _, target := range targets {
		exists, err := v.inspector.TableExists(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			result.Issues = append(result.Issues, Issue{Table: target, Problem: "missing"})
			continue
		}
		if _, err := v.inspector.CountRows(ctx, target); err != nil {
			result.Issues = append(result.Issues, Issue{Table: target, Problem: "unqueryable"})
		}
	}

	return result, nil
}
