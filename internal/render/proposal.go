// Package render formats sync proposals for terminal inspection.
// Every proposal is rendered before anything can be confirmed.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/membankd/internal/reconcile"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	divergenceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))
)

// Proposal renders a full proposal: actions in application order, then
// divergences requiring a decision, then marker warnings.
func Proposal(p *reconcile.Proposal) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Sync proposal"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%s)", p.GeneratedAt.Format("2006-01-02 15:04:05 MST"))))
	b.WriteString("\n\n")

	if p.Empty() {
		b.WriteString(emptyStyle.Render("Nothing to do: local and remote state agree."))
		b.WriteString("\n")
	} else {
		for i, action := range p.Actions {
			b.WriteString(dimStyle.Render(fmt.Sprintf("%2d. ", i+1)))
			b.WriteString(typeStyle.Render(string(action.Type)))
			b.WriteString(" ")
			b.WriteString(actionStyle.Render(describe(action)))
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("      " + action.Justification))
			b.WriteString("\n")
		}
	}

	if len(p.Divergences) > 0 {
		b.WriteString("\n")
		b.WriteString(divergenceStyle.Render(fmt.Sprintf("Divergences (%d) - user decision required", len(p.Divergences))))
		b.WriteString("\n")
		for _, d := range p.Divergences {
			b.WriteString(divergenceStyle.Render("  ! "))
			b.WriteString(actionStyle.Render(d.Detail))
			b.WriteString("\n")
		}
	}

	if len(p.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(fmt.Sprintf("Marker warnings (%d)", len(p.Warnings))))
		b.WriteString("\n")
		for _, w := range p.Warnings {
			b.WriteString(warningStyle.Render("  ~ "))
			b.WriteString(dimStyle.Render(fmt.Sprintf("%s:%d ", w.Source.Filename(), w.Line)))
			b.WriteString(actionStyle.Render(w.Detail))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func describe(a reconcile.Action) string {
	switch a.Type {
	case reconcile.ActionCreateIssue:
		return fmt.Sprintf("%q for task %s", a.Title, a.TaskID)
	case reconcile.ActionUpdateIssueState:
		if a.IssueNumber == 0 {
			return fmt.Sprintf("set new issue for task %s to %s", a.TaskID, a.State)
		}
		return fmt.Sprintf("set issue #%d to %s", a.IssueNumber, a.State)
	case reconcile.ActionUpdateProjectField:
		return fmt.Sprintf("set %s of issue #%d to %q", a.Field, a.IssueNumber, a.Value)
	case reconcile.ActionWriteDocument:
		return fmt.Sprintf("rewrite %s", a.Role.Filename())
	case reconcile.ActionAppendDocument:
		return fmt.Sprintf("append sync note to %s", a.Role.Filename())
	}
	return string(a.Type)
}

// ApplyResult renders the outcome of applying a proposal, including
// how far a halted proposal got.
func ApplyResult(applied []reconcile.Action, failed *reconcile.Action, remaining []reconcile.Action) string {
	var b strings.Builder

	b.WriteString(emptyStyle.Render(fmt.Sprintf("Applied %d action(s)", len(applied))))
	b.WriteString("\n")
	for _, a := range applied {
		b.WriteString(dimStyle.Render("  + "))
		b.WriteString(actionStyle.Render(describe(a)))
		b.WriteString("\n")
	}

	if failed != nil {
		b.WriteString(divergenceStyle.Render("Halted at: "))
		b.WriteString(actionStyle.Render(describe(*failed)))
		b.WriteString("\n")
		if len(remaining) > 0 {
			b.WriteString(warningStyle.Render(fmt.Sprintf("Unapplied (%d), surfaced for re-proposal:", len(remaining))))
			b.WriteString("\n")
			for _, a := range remaining {
				b.WriteString(dimStyle.Render("  - "))
				b.WriteString(actionStyle.Render(describe(a)))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
