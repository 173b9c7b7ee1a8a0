package toolexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/config"
)

func newTestAdapter(t *testing.T) (*Adapter, *audit.Trail, string) {
	t.Helper()
	dir := t.TempDir()
	trail, err := audit.NewTrail(filepath.Join(t.TempDir(), "audit.jsonl"), nil)
	require.NoError(t, err)
	adapter, err := NewAdapter(config.ToolsConfig{BasePath: dir}, trail, nil)
	require.NoError(t, err)
	return adapter, trail, dir
}

func TestInvoke_FSRoundTrip(t *testing.T) {
	adapter, _, dir := newTestAdapter(t)
	ctx := context.Background()

	result := adapter.Invoke(ctx, "fs_write", map[string]string{"path": "notes.md", "content": "hello"})
	require.True(t, result.OK, result.Error)

	result = adapter.Invoke(ctx, "fs_append", map[string]string{"path": "notes.md", "content": " world"})
	require.True(t, result.OK, result.Error)

	result = adapter.Invoke(ctx, "fs_read", map[string]string{"path": "notes.md"})
	require.True(t, result.OK, result.Error)
	assert.Equal(t, "hello world", result.Output)

	result = adapter.Invoke(ctx, "fs_mkdir", map[string]string{"path": "sub"})
	require.True(t, result.OK, result.Error)

	result = adapter.Invoke(ctx, "fs_list", map[string]string{"path": "."})
	require.True(t, result.OK, result.Error)
	assert.Contains(t, result.Output, "notes.md\n")
	assert.Contains(t, result.Output, "sub/\n")

	// The confined base actually holds the file.
	data, err := os.ReadFile(filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestInvoke_FSListRecursive(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	require.True(t, adapter.Invoke(ctx, "fs_mkdir", map[string]string{"path": "sub/deep"}).OK)
	require.True(t, adapter.Invoke(ctx, "fs_write", map[string]string{"path": "top.md", "content": "x"}).OK)
	require.True(t, adapter.Invoke(ctx, "fs_write", map[string]string{"path": "sub/deep/leaf.md", "content": "y"}).OK)

	// One level by default.
	result := adapter.Invoke(ctx, "fs_list", map[string]string{"path": "."})
	require.True(t, result.OK, result.Error)
	assert.Contains(t, result.Output, "top.md\n")
	assert.NotContains(t, result.Output, "leaf.md")

	result = adapter.Invoke(ctx, "fs_list", map[string]string{"path": ".", "recursive": "true"})
	require.True(t, result.OK, result.Error)
	assert.Contains(t, result.Output, "top.md\n")
	assert.Contains(t, result.Output, "sub/\n")
	assert.Contains(t, result.Output, filepath.Join("sub", "deep", "leaf.md")+"\n")
}

func TestInvoke_PathConfinement(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	for _, path := range []string{"../escape.md", "/etc/passwd", "a/../../b"} {
		result := adapter.Invoke(ctx, "fs_read", map[string]string{"path": path})
		assert.False(t, result.OK, "path %q", path)
		assert.Contains(t, result.Error, "escapes", "path %q", path)
	}
}

func TestInvoke_UnknownTool(t *testing.T) {
	adapter, trail, _ := newTestAdapter(t)

	result := adapter.Invoke(context.Background(), "rm_rf", nil)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "unknown tool")

	// Even rejected invocations are audited.
	entries, err := trail.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.KindToolInvocation, entries[0].Kind)
	assert.Equal(t, "rm_rf", entries[0].Tool)
}

func TestInvoke_AuditsArguments(t *testing.T) {
	adapter, trail, _ := newTestAdapter(t)

	args := map[string]string{"path": "notes.md", "content": "x"}
	result := adapter.Invoke(context.Background(), "fs_write", args)
	require.True(t, result.OK, result.Error)

	entries, err := trail.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fs_write", entries[0].Tool)
	assert.Equal(t, args, entries[0].Args)
	assert.Empty(t, entries[0].Error)
}

func TestShellTools_FakeRunner(t *testing.T) {
	var gotBin string
	var gotArgs []string
	sh := newShellTools(config.ToolsConfig{})
	sh.run = func(ctx context.Context, bin string, args ...string) (string, error) {
		gotBin = bin
		gotArgs = args
		return "done", nil
	}
	ctx := context.Background()

	out, err := sh.depsSync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, "uv", gotBin)
	assert.Equal(t, []string{"sync"}, gotArgs)

	_, err = sh.depsAdd(ctx, map[string]string{"package": "requests"})
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "requests"}, gotArgs)

	_, err = sh.depsAdd(ctx, map[string]string{})
	assert.Error(t, err)

	_, err = sh.depsRemove(ctx, map[string]string{"package": "requests"})
	require.NoError(t, err)
	assert.Equal(t, []string{"remove", "requests"}, gotArgs)

	_, err = sh.lintCheck(ctx, map[string]string{"fix": "true"})
	require.NoError(t, err)
	assert.Equal(t, "ruff", gotBin)
	assert.Equal(t, []string{"check", ".", "--fix"}, gotArgs)

	_, err = sh.lintFormat(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"format", "."}, gotArgs)
}

func TestShellTools_ErrorPropagates(t *testing.T) {
	sh := newShellTools(config.ToolsConfig{})
	sh.run = func(ctx context.Context, bin string, args ...string) (string, error) {
		return "lint output", fmt.Errorf("exit status 1")
	}
	out, err := sh.lintCheck(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, "lint output", out)
}
