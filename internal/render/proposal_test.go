package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/reconcile"
)

func TestProposal_Empty(t *testing.T) {
	out := Proposal(&reconcile.Proposal{GeneratedAt: time.Now()})
	assert.Contains(t, out, "Nothing to do")
}

func TestProposal_ActionsDivergencesWarnings(t *testing.T) {
	ref := &reconcile.RemoteRef{Repo: "acme/app", Number: 42}
	p := &reconcile.Proposal{
		GeneratedAt: time.Now(),
		Actions: []reconcile.Action{
			{Type: reconcile.ActionCreateIssue, TaskID: "T-1", Title: "Add rate limiting", Justification: "task T-1 has no remote issue"},
			{Type: reconcile.ActionUpdateIssueState, TaskID: "T-2", IssueNumber: 42, State: "closed", Justification: "done locally"},
			{Type: reconcile.ActionAppendDocument, Role: membank.RoleProgress, Fragment: "x", Justification: "stale"},
		},
		Divergences: []reconcile.Divergence{
			{Kind: reconcile.KindOrphanedReference, TaskID: "T-3", Ref: ref, Detail: "task T-3 references acme/app#42 which no longer resolves"},
		},
		Warnings: []reconcile.Warning{
			{Source: membank.RoleTasks, Line: 9, Detail: "task bullet without task-id, skipping"},
		},
	}

	out := Proposal(p)
	assert.Contains(t, out, `"Add rate limiting" for task T-1`)
	assert.Contains(t, out, "set issue #42 to closed")
	assert.Contains(t, out, "append sync note to progress.md")
	assert.Contains(t, out, "no longer resolves")
	assert.Contains(t, out, "tasks.md:9")
	assert.Contains(t, out, "without task-id")
}

func TestApplyResult_Halted(t *testing.T) {
	failed := reconcile.Action{Type: reconcile.ActionUpdateIssueState, TaskID: "T-2", IssueNumber: 42, State: "closed"}
	out := ApplyResult(
		[]reconcile.Action{{Type: reconcile.ActionCreateIssue, TaskID: "T-1", Title: "x"}},
		&failed,
		[]reconcile.Action{{Type: reconcile.ActionUpdateProjectField, TaskID: "T-3", IssueNumber: 43, Field: "Status", Value: "Done"}},
	)
	assert.Contains(t, out, "Applied 1 action(s)")
	assert.Contains(t, out, "Halted at")
	assert.Contains(t, out, "Unapplied (1)")
}
