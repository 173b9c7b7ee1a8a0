package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

// fakeClient is an in-memory tracker for engine tests. Mutating
// methods record their calls; the engine itself must never invoke
// them.
type fakeClient struct {
	issues map[int]*tracker.Issue
	items  []*tracker.ProjectItem
	getErr error

	created []tracker.NewIssue
	updated []int
}

func (f *fakeClient) GetIssue(ctx context.Context, number int) (*tracker.Issue, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
	}
	return issue, nil
}

func (f *fakeClient) CreateIssue(ctx context.Context, issue tracker.NewIssue) (*tracker.Issue, error) {
	f.created = append(f.created, issue)
	return &tracker.Issue{Number: 100 + len(f.created), Title: issue.Title, State: "open"}, nil
}

func (f *fakeClient) UpdateIssue(ctx context.Context, number int, update tracker.IssueUpdate) (*tracker.Issue, error) {
	f.updated = append(f.updated, number)
	return &tracker.Issue{Number: number}, nil
}

func (f *fakeClient) ListIssues(ctx context.Context, filter tracker.IssueFilter) *tracker.IssueSeq {
	return tracker.NewIssueSeq(func(ctx context.Context) ([]*tracker.Issue, bool, error) {
		return nil, false, nil
	})
}

func (f *fakeClient) ListProjectItems(ctx context.Context, filter tracker.ItemFilter) *tracker.ItemSeq {
	items := f.items
	return tracker.NewItemSeq(func(ctx context.Context) ([]*tracker.ProjectItem, bool, error) {
		return items, false, nil
	})
}

func (f *fakeClient) CreateProjectItem(ctx context.Context, item tracker.NewProjectItem) (string, error) {
	return "PVTI_fake", nil
}

func (f *fakeClient) UpdateProjectItemField(ctx context.Context, itemID, field, value string) error {
	return nil
}

func (f *fakeClient) DeleteProjectItem(ctx context.Context, itemID string) error {
	return nil
}

func newTestEngine(t *testing.T, client tracker.Client, project bool) (*Engine, *membank.Store, *audit.Trail) {
	t.Helper()
	dir := t.TempDir()
	trail, err := audit.NewTrail(filepath.Join(dir, "audit.jsonl"), nil)
	require.NoError(t, err)
	store, err := membank.NewStore(dir, trail, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Repo = "acme/app"
	cfg.ProjectConfigured = project
	engine, err := NewEngine(client, store, trail, cfg, nil)
	require.NoError(t, err)
	return engine, store, trail
}

func writeTasks(t *testing.T, store *membank.Store, body string) {
	t.Helper()
	require.NoError(t, store.Write(context.Background(), membank.RoleTasks, body))
}

func TestPlan_CreateForUnlinkedTask(t *testing.T) {
	client := &fakeClient{}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [ ] Add rate limiting (task-id: T-1)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, proposal.Actions, 1)
	action := proposal.Actions[0]
	assert.Equal(t, ActionCreateIssue, action.Type)
	assert.Equal(t, "T-1", action.TaskID)
	assert.Equal(t, "Add rate limiting", action.Title)
	assert.NotEmpty(t, action.Justification)
	assert.Empty(t, proposal.Divergences)
	// Planning never touches the tracker's mutating surface.
	assert.Empty(t, client.created)
}

func TestPlan_LinkedTaskInSyncIsEmpty(t *testing.T) {
	client := &fakeClient{issues: map[int]*tracker.Issue{
		42: {Number: 42, State: "open"},
	}}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [ ] Fix login (task-id: T-1) (status: in-progress) (github-issue: acme/app#42)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)
	assert.True(t, proposal.Empty())
}

func TestPlan_DoneUnlinkedChainsCloseAfterCreate(t *testing.T) {
	engine, store, _ := newTestEngine(t, &fakeClient{}, false)
	writeTasks(t, store, "- [x] Ship v1 docs (task-id: T-1)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, proposal.Actions, 2)
	assert.Equal(t, ActionCreateIssue, proposal.Actions[0].Type)
	assert.Equal(t, ActionUpdateIssueState, proposal.Actions[1].Type)
	assert.Equal(t, "closed", proposal.Actions[1].State)
	assert.Equal(t, "T-1", proposal.Actions[1].TaskID)
	// The issue number is unknown until the creation has been
	// applied; the executor resolves it.
	assert.Zero(t, proposal.Actions[1].IssueNumber)
}

func TestPlan_UpdateIssueStateOnMismatch(t *testing.T) {
	client := &fakeClient{issues: map[int]*tracker.Issue{
		42: {Number: 42, State: "open"},
	}}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [x] Fix login (task-id: T-1) (github-issue: acme/app#42)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, proposal.Actions, 1)
	action := proposal.Actions[0]
	assert.Equal(t, ActionUpdateIssueState, action.Type)
	assert.Equal(t, 42, action.IssueNumber)
	assert.Equal(t, "closed", action.State)

	// Once remote state matches, the next pass proposes nothing.
	client.issues[42].State = "closed"
	proposal, err = engine.Plan(context.Background())
	require.NoError(t, err)
	assert.True(t, proposal.Empty())
}

func TestPlan_OrphanedReference(t *testing.T) {
	client := &fakeClient{issues: map[int]*tracker.Issue{}}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [ ] Fix login (task-id: T-1) (github-issue: acme/app#42)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	assert.Empty(t, proposal.Actions)
	require.Len(t, proposal.Divergences, 1)
	div := proposal.Divergences[0]
	assert.Equal(t, KindOrphanedReference, div.Kind)
	assert.Equal(t, "T-1", div.TaskID)
	require.NotNil(t, div.Ref)
	assert.Equal(t, 42, div.Ref.Number)
}

func TestPlan_AbortsOnTrackerFailure(t *testing.T) {
	client := &fakeClient{getErr: fmt.Errorf("gateway: %w", tracker.ErrTransient)}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [ ] Fix login (task-id: T-1) (github-issue: acme/app#42)\n")

	_, err := engine.Plan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconciliationAborted)
}

func TestPlan_ProjectFieldUpdate(t *testing.T) {
	client := &fakeClient{
		issues: map[int]*tracker.Issue{42: {Number: 42, State: "open"}},
		items: []*tracker.ProjectItem{{
			ID:          "PVTI_1",
			IssueNumber: 42,
			Fields:      map[string]string{"Status": "Todo"},
		}},
	}
	engine, store, _ := newTestEngine(t, client, true)
	writeTasks(t, store, "- [ ] Fix login (task-id: T-1) (status: in-progress) (github-issue: acme/app#42)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, proposal.Actions, 1)
	action := proposal.Actions[0]
	assert.Equal(t, ActionUpdateProjectField, action.Type)
	assert.Equal(t, "PVTI_1", action.ItemID)
	assert.Equal(t, "Status", action.Field)
	assert.Equal(t, "In Progress", action.Value)
}

func TestPlan_StatusConflictSurfaced(t *testing.T) {
	client := &fakeClient{issues: map[int]*tracker.Issue{
		42: {Number: 42, State: "open", UpdatedAt: time.Now().Add(time.Hour)},
	}}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [x] Fix login (task-id: T-1) (github-issue: acme/app#42)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	// Local state still drives the proposal.
	require.Len(t, proposal.Actions, 1)
	assert.Equal(t, ActionUpdateIssueState, proposal.Actions[0].Type)

	require.Len(t, proposal.Divergences, 1)
	assert.Equal(t, KindStatusConflict, proposal.Divergences[0].Kind)
}

func TestPlan_StaleStructuralDocsGetAppend(t *testing.T) {
	engine, store, trail := newTestEngine(t, &fakeClient{}, false)
	ctx := context.Background()

	// Materialize all documents, then record an applied action newer
	// than every structural document.
	_, err := store.LoadAll(ctx)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, trail.Record(ctx, audit.Entry{
		Kind:   audit.KindActionApplied,
		Action: string(ActionUpdateIssueState),
		TaskID: "T-1",
	}))

	proposal, err := engine.Plan(ctx)
	require.NoError(t, err)

	var appendRoles []membank.Role
	for _, a := range proposal.Actions {
		require.Equal(t, ActionAppendDocument, a.Type)
		assert.Contains(t, a.Fragment, "T-1")
		appendRoles = append(appendRoles, a.Role)
	}
	assert.ElementsMatch(t, []membank.Role{
		membank.RoleActiveContext,
		membank.RoleProgress,
		membank.RoleProjectIntelligence,
	}, appendRoles)
}

func TestPlan_StaleAppendsConvergeAfterApply(t *testing.T) {
	engine, store, trail := newTestEngine(t, &fakeClient{}, false)
	ctx := context.Background()

	_, err := store.LoadAll(ctx)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, trail.Record(ctx, audit.Entry{
		Kind:   audit.KindActionApplied,
		Action: string(ActionUpdateIssueState),
		TaskID: "T-1",
	}))

	proposal, err := engine.Plan(ctx)
	require.NoError(t, err)
	require.Len(t, proposal.Actions, 3)

	// Apply the appends the way the executor would: write each
	// fragment, then record the applied action.
	time.Sleep(10 * time.Millisecond)
	for _, a := range proposal.Actions {
		require.NoError(t, store.Append(ctx, a.Role, a.Fragment))
		require.NoError(t, trail.Record(ctx, audit.Entry{
			Kind:   audit.KindActionApplied,
			Action: string(a.Type),
			Role:   string(a.Role),
		}))
	}

	// The applied appends brought the documents up to date; they must
	// not flag the same documents again.
	proposal, err = engine.Plan(ctx)
	require.NoError(t, err)
	assert.True(t, proposal.Empty())
}

func TestPlan_ForeignRepoReferenceSurfaced(t *testing.T) {
	client := &fakeClient{issues: map[int]*tracker.Issue{
		7: {Number: 7, State: "open"},
	}}
	engine, store, _ := newTestEngine(t, client, false)
	writeTasks(t, store, "- [x] Upstream fix (task-id: T-1) (github-issue: other/lib#7)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	// Issue #7 exists in the configured repository's number space,
	// but the reference names another repository; nothing may touch
	// it.
	assert.Empty(t, proposal.Actions)
	require.Len(t, proposal.Divergences, 1)
	div := proposal.Divergences[0]
	assert.Equal(t, KindForeignReference, div.Kind)
	assert.Equal(t, "T-1", div.TaskID)
	require.NotNil(t, div.Ref)
	assert.Equal(t, "other/lib", div.Ref.Repo)
}

type fakeChanges struct {
	roles []membank.Role
}

func (f *fakeChanges) DrainChanged() []membank.Role {
	r := f.roles
	f.roles = nil
	return r
}

func TestPlan_ExternalEditsSurfaceAsWarnings(t *testing.T) {
	engine, _, _ := newTestEngine(t, &fakeClient{}, false)
	engine.WatchChanges(&fakeChanges{roles: []membank.Role{membank.RoleTasks}})

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	found := false
	for _, w := range proposal.Warnings {
		if w.Source == membank.RoleTasks && strings.Contains(w.Detail, "changed on disk") {
			found = true
		}
	}
	assert.True(t, found, "external edit warning missing")

	// The change set drains on read; the next pass is quiet.
	proposal, err = engine.Plan(context.Background())
	require.NoError(t, err)
	for _, w := range proposal.Warnings {
		assert.NotContains(t, w.Detail, "changed on disk")
	}
}

func TestPlan_OrderingContract(t *testing.T) {
	client := &fakeClient{
		issues: map[int]*tracker.Issue{
			10: {Number: 10, State: "open"},
			11: {Number: 11, State: "open"},
		},
		items: []*tracker.ProjectItem{{
			ID:          "PVTI_11",
			IssueNumber: 11,
			Fields:      map[string]string{"Status": "Todo"},
		}},
	}
	engine, store, _ := newTestEngine(t, client, true)
	writeTasks(t, store,
		"- [ ] B task (task-id: T-2)\n"+
			"- [ ] A task (task-id: T-1)\n"+
			"- [x] Linked done (task-id: T-3) (github-issue: acme/app#10)\n"+
			"- [ ] Board drift (task-id: T-4) (status: in-progress) (github-issue: acme/app#11)\n")

	proposal, err := engine.Plan(context.Background())
	require.NoError(t, err)

	var got []string
	for _, a := range proposal.Actions {
		got = append(got, fmt.Sprintf("%s/%s", a.Type, a.TaskID))
	}
	assert.Equal(t, []string{
		"create_issue/T-1",
		"create_issue/T-2",
		"update_issue_state/T-3",
		"update_project_field/T-4",
	}, got)
}

func TestNewEngine_Validation(t *testing.T) {
	dir := t.TempDir()
	trail, err := audit.NewTrail(filepath.Join(dir, "audit.jsonl"), nil)
	require.NoError(t, err)
	store, err := membank.NewStore(dir, trail, nil)
	require.NoError(t, err)

	_, err = NewEngine(nil, store, trail, DefaultConfig(), nil)
	assert.Error(t, err)
	_, err = NewEngine(&fakeClient{}, nil, trail, DefaultConfig(), nil)
	assert.Error(t, err)
	_, err = NewEngine(&fakeClient{}, store, nil, DefaultConfig(), nil)
	assert.Error(t, err)
}
