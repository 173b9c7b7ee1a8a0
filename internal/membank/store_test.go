package membank

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/membankd/internal/audit"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	trail, err := audit.NewTrail(filepath.Join(dir, "audit.jsonl"), nil)
	require.NoError(t, err)
	store, err := NewStore(filepath.Join(dir, "bank"), trail, nil)
	require.NoError(t, err)
	return store
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore("", nil, nil)
	require.Error(t, err)

	trail, err := audit.NewTrail(filepath.Join(t.TempDir(), "a.jsonl"), nil)
	require.NoError(t, err)
	_, err = NewStore(t.TempDir(), nil, nil)
	require.Error(t, err)

	_, err = NewStore(t.TempDir(), trail, nil)
	require.NoError(t, err)
}

func TestLoadAll_CreatesMissingFromTemplates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 9)

	assert.Contains(t, docs[RoleRoadmap].Body, "Project Roadmap")
	assert.Contains(t, docs[RoleProjectIntelligence].Body, "Learned Patterns")

	for _, role := range AllRoles() {
		_, err := os.Stat(filepath.Join(store.Dir(), role.Filename()))
		assert.NoError(t, err, "file for %s should exist", role)
	}
}

func TestLoad_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), RoleTasks)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_InvalidRole(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), Role("bogus"))
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestWrite_ReplacesFullBody(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, RoleTasks, "# Tasks\n\n- [ ] one\n"))
	require.NoError(t, store.Write(ctx, RoleTasks, "# Tasks\n\n- [ ] two\n"))

	doc, err := store.Load(ctx, RoleTasks)
	require.NoError(t, err)
	assert.NotContains(t, doc.Body, "one")
	assert.Contains(t, doc.Body, "two")
}

func TestAppend_IsPureSuffix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, RoleProgress, "# Progress\n"))
	require.NoError(t, store.Append(ctx, RoleProgress, "- synced T-1\n"))
	require.NoError(t, store.Append(ctx, RoleProgress, "- synced T-1\n")) // no dedup

	doc, err := store.Load(ctx, RoleProgress)
	require.NoError(t, err)
	assert.Equal(t, "# Progress\n- synced T-1\n- synced T-1\n", doc.Body)
}

func TestWrites_AreAudited(t *testing.T) {
	dir := t.TempDir()
	trail, err := audit.NewTrail(filepath.Join(dir, "audit.jsonl"), nil)
	require.NoError(t, err)
	store, err := NewStore(filepath.Join(dir, "bank"), trail, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, RoleTasks, "body"))
	require.NoError(t, store.Append(ctx, RoleTasks, "more"))

	entries, err := trail.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.KindDocumentWrite, entries[0].Kind)
	assert.Equal(t, 4, entries[0].Bytes)
	assert.Equal(t, audit.KindDocumentAppend, entries[1].Kind)
}

func TestAllRoles_DependencyOrder(t *testing.T) {
	seen := make(map[Role]bool)
	for _, role := range AllRoles() {
		for _, parent := range role.Parents() {
			assert.True(t, seen[parent], "%s must come after %s", role, parent)
		}
		seen[role] = true
	}
	assert.Len(t, seen, 9)
}

func TestStaleRoles(t *testing.T) {
	base := time.Now()
	docs := map[Role]Document{
		RoleProjectBrief:  {Role: RoleProjectBrief, LastModified: base},
		RoleTechContext:   {Role: RoleTechContext, LastModified: base.Add(-time.Hour)},
		RoleActiveContext: {Role: RoleActiveContext, LastModified: base.Add(time.Hour)},
	}

	stale := StaleRoles(docs)
	require.Len(t, stale, 1)
	assert.Equal(t, RoleTechContext, stale[0])
}

func TestStaleRoles_NoFalsePositives(t *testing.T) {
	base := time.Now()
	docs := make(map[Role]Document, 9)
	for i, role := range AllRoles() {
		docs[role] = Document{Role: role, LastModified: base.Add(time.Duration(i) * time.Minute)}
	}
	assert.Empty(t, StaleRoles(docs))
}

func TestWatcher_DrainChanged(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWatcher(store, nil)
	require.NoError(t, err)
	defer w.Close()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "tasks.md"), []byte("x"), 0o600))

	require.Eventually(t, func() bool {
		roles := w.DrainChanged()
		return len(roles) == 1 && roles[0] == RoleTasks
	}, 2*time.Second, 20*time.Millisecond)
}
