// Package report renders plans and run outcomes for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/schemashift/schemashift/internal/engine"
	"github.com/schemashift/schemashift/internal/plan"
	"github.com/schemashift/schemashift/internal/rollback"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// RenderPlan lists every planned step and every skipped mapping.
func RenderPlan(p *plan.Plan) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Migration Plan"))
	b.WriteString("\n\n")

	if p.IsEmpty() {
		b.WriteString(dimStyle.Render("No operations: every source is already migrated."))
		b.WriteString("\n")
	}
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "  %2d. %s\n", i+1, s.Describe())
	}
	if len(p.Skipped) > 0 {
		b.WriteString("\n")
		for _, skip := range p.Skipped {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  skipped %s %q: %s", skip.Kind, skip.Name, skip.Reason)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderResult summarizes a finished (or dry) migration run.
func RenderResult(r *engine.Result) string {
	var b strings.Builder
	b.WriteString(RenderPlan(r.Plan))
	b.WriteString("\n")

	if r.DryRun {
		b.WriteString(warnStyle.Render("Dry run: no changes were made."))
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n", dimStyle.Render("run:"), r.RunID)
	if r.BackupPath != "" {
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render("backup:"), r.BackupPath)
	}
	fmt.Fprintf(&b, "%s %s\n", dimStyle.Render("state:"), r.State)

	if v := r.Verification; v != nil {
		if v.OK() {
			b.WriteString(successStyle.Render(fmt.Sprintf("Verified %d tables.", v.Checked)))
		} else {
			b.WriteString(errStyle.Render(v.Warning()))
			b.WriteString("\n")
			b.WriteString(warnStyle.Render("Consider running: schemashift rollback"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderRollback summarizes a finished rollback.
func RenderRollback(r *rollback.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Rollback"))
	b.WriteString("\n\n")

	for _, table := range r.RestoredTables {
		b.WriteString(successStyle.Render(fmt.Sprintf("  restored %s", table)))
		b.WriteString("\n")
	}
	if len(r.LeftoverColumns) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("Columns left in place for manual review:"))
		b.WriteString("\n")
		for _, col := range r.LeftoverColumns {
			fmt.Fprintf(&b, "  %s\n", dimStyle.Render(col))
		}
	}
	return b.String()
}
