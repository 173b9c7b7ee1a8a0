package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/membankd/internal/membank"
)

const sampleTasks = `# Tasks

## Current

- [ ] Fix login flow (task-id: T-1) (status: in-progress) (github-issue: acme/app#42)
- [ ] Add rate limiting (task-id: T-2)
- [x] Ship v1 docs (task-id: T-3)

Notes in prose are ignored.

- [ ] no id on this one
`

func TestExtractTasks(t *testing.T) {
	tasks, warnings := ExtractTasks(membank.RoleTasks, sampleTasks)
	require.Len(t, tasks, 3)

	assert.Equal(t, "T-1", tasks[0].ID)
	assert.Equal(t, "Fix login flow", tasks[0].Title)
	assert.Equal(t, StatusInProgress, tasks[0].Status)
	require.NotNil(t, tasks[0].Ref)
	assert.Equal(t, "acme/app", tasks[0].Ref.Repo)
	assert.Equal(t, 42, tasks[0].Ref.Number)

	assert.Equal(t, "T-2", tasks[1].ID)
	assert.Equal(t, StatusTodo, tasks[1].Status)
	assert.Nil(t, tasks[1].Ref)

	assert.Equal(t, "T-3", tasks[2].ID)
	assert.Equal(t, StatusDone, tasks[2].Status)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Detail, "without task-id")
}

func TestExtractTasks_AmbiguousMarkersWarnNotFail(t *testing.T) {
	body := strings.Join([]string{
		"- [ ] Odd status (task-id: T-1) (status: banana)",
		"- [x] Checked but annotated open (task-id: T-2) (status: todo)",
		"- [ ] Bad ref (task-id: T-3) (github-issue: not-a-ref)",
		"- [ ] Duplicate (task-id: T-1)",
	}, "\n")

	tasks, warnings := ExtractTasks(membank.RoleTasks, body)
	require.Len(t, tasks, 3)

	// Unrecognized status falls back to the checkbox.
	assert.Equal(t, StatusTodo, tasks[0].Status)
	// Checkbox wins over a contradicting annotation.
	assert.Equal(t, StatusDone, tasks[1].Status)
	// Malformed references leave the task unlinked.
	assert.Nil(t, tasks[2].Ref)

	require.Len(t, warnings, 4)
	assert.Equal(t, 4, warnings[3].Line)
	assert.Contains(t, warnings[3].Detail, "duplicate")
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"todo":        StatusTodo,
		"In Progress": StatusInProgress,
		"WIP":         StatusInProgress,
		"Done":        StatusDone,
		"completed":   StatusDone,
	} {
		got, ok := ParseStatus(in)
		require.True(t, ok, "input %q", in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseStatus("later")
	assert.False(t, ok)
}

func TestStatusMappings(t *testing.T) {
	assert.Equal(t, "open", StatusTodo.IssueState())
	assert.Equal(t, "open", StatusInProgress.IssueState())
	assert.Equal(t, "closed", StatusDone.IssueState())

	assert.Equal(t, "Todo", StatusTodo.FieldValue())
	assert.Equal(t, "In Progress", StatusInProgress.FieldValue())
	assert.Equal(t, "Done", StatusDone.FieldValue())
}

func TestParseRemoteRef(t *testing.T) {
	ref, err := ParseRemoteRef("acme/app#42")
	require.NoError(t, err)
	assert.Equal(t, RemoteRef{Repo: "acme/app", Number: 42}, ref)
	assert.Equal(t, "acme/app#42", ref.String())

	for _, bad := range []string{"", "acme/app", "#42", "acme/app#0", "acme/app#x"} {
		_, err := ParseRemoteRef(bad)
		assert.Error(t, err, "ref %q", bad)
	}
}

func TestAnnotateRemoteRef(t *testing.T) {
	body := "- [ ] Add rate limiting (task-id: T-2)\n- [ ] Other (task-id: T-9)\n"
	out, err := AnnotateRemoteRef(body, "T-2", RemoteRef{Repo: "acme/app", Number: 7})
	require.NoError(t, err)
	assert.Contains(t, out, "- [ ] Add rate limiting (task-id: T-2) (github-issue: acme/app#7)")
	assert.Contains(t, out, "- [ ] Other (task-id: T-9)\n")

	// Re-extracting sees the link, so a second pass will not create
	// the issue again.
	tasks, _ := ExtractTasks(membank.RoleTasks, out)
	require.NotEmpty(t, tasks)
	require.NotNil(t, tasks[0].Ref)
	assert.Equal(t, 7, tasks[0].Ref.Number)

	_, err = AnnotateRemoteRef(out, "T-2", RemoteRef{Repo: "acme/app", Number: 8})
	assert.Error(t, err)

	_, err = AnnotateRemoteRef(body, "T-404", RemoteRef{Repo: "acme/app", Number: 7})
	assert.Error(t, err)
}
