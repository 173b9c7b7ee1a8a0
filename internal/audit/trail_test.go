package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrail(t *testing.T) *Trail {
	t.Helper()
	trail, err := NewTrail(filepath.Join(t.TempDir(), "audit.jsonl"), nil)
	require.NoError(t, err)
	return trail
}

func TestNewTrail_RequiresPath(t *testing.T) {
	_, err := NewTrail("", nil)
	require.Error(t, err)
}

func TestRecordAndReplay(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	require.NoError(t, trail.Record(ctx, Entry{Kind: KindDocumentWrite, Role: "tasks", Bytes: 42}))
	require.NoError(t, trail.Record(ctx, Entry{Kind: KindActionApplied, TaskID: "T-1", Action: "CreateIssue"}))

	entries, err := trail.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindDocumentWrite, entries[0].Kind)
	assert.Equal(t, "tasks", entries[0].Role)
	assert.Equal(t, 42, entries[0].Bytes)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Time.IsZero())

	assert.Equal(t, KindActionApplied, entries[1].Kind)
	assert.Equal(t, "T-1", entries[1].TaskID)
}

func TestReplay_MissingFile(t *testing.T) {
	trail := newTestTrail(t)
	entries, err := trail.Replay()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReplay_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := NewTrail(path, nil)
	require.NoError(t, err)

	require.NoError(t, trail.Record(context.Background(), Entry{Kind: KindToolInvocation, Tool: "ruff_check"}))

	// Simulate a torn write from a crash.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"action_app`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := trail.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ruff_check", entries[0].Tool)
}

func TestLastApplied(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	_, ok, err := trail.LastApplied()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, trail.Record(ctx, Entry{Kind: KindActionApplied, TaskID: "T-1"}))
	require.NoError(t, trail.Record(ctx, Entry{Kind: KindActionFailed, TaskID: "T-2"}))
	require.NoError(t, trail.Record(ctx, Entry{Kind: KindActionApplied, TaskID: "T-3"}))

	e, ok, err := trail.LastApplied()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "T-3", e.TaskID)
}

func TestAppliedSince(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, trail.Record(ctx, Entry{Kind: KindActionApplied, TaskID: "T-old", Time: old}))
	require.NoError(t, trail.Record(ctx, Entry{Kind: KindActionApplied, TaskID: "T-new"}))

	entries, err := trail.AppliedSince(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "T-new", entries[0].TaskID)
}
