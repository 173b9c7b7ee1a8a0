// Package toolexec invokes side-effecting leaf tools (filesystem,
// dependency manager, linter) through a uniform envelope. Calls are
// never retried; every invocation lands in the audit trail with its
// full argument set so a session can be reconstructed after a memory
// reset.
package toolexec

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/config"
	"github.com/fyrsmithlabs/membankd/internal/metrics"
)

// Result is the uniform tool invocation envelope.
type Result struct {
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// toolFunc executes one tool call.
type toolFunc func(ctx context.Context, args map[string]string) (string, error)

// Adapter dispatches tool invocations by name.
type Adapter struct {
	trail  *audit.Trail
	logger *zap.Logger
	tools  map[string]toolFunc
}

// NewAdapter builds an adapter with the filesystem, dependency, and
// lint tools registered. The logger may be nil.
func NewAdapter(cfg config.ToolsConfig, trail *audit.Trail, logger *zap.Logger) (*Adapter, error) {
	if trail == nil {
		return nil, fmt.Errorf("toolexec: audit trail is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fs, err := newFSTools(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	sh := newShellTools(cfg)

	a := &Adapter{
		trail:  trail,
		logger: logger.Named("toolexec"),
		tools:  map[string]toolFunc{},
	}
	a.register("fs_read", fs.read)
	a.register("fs_write", fs.write)
	a.register("fs_append", fs.append)
	a.register("fs_list", fs.list)
	a.register("fs_mkdir", fs.mkdir)
	a.register("deps_sync", sh.depsSync)
	a.register("deps_add", sh.depsAdd)
	a.register("deps_remove", sh.depsRemove)
	a.register("lint_check", sh.lintCheck)
	a.register("lint_format", sh.lintFormat)
	return a, nil
}

func (a *Adapter) register(name string, fn toolFunc) {
	a.tools[name] = fn
}

// Tools returns the registered tool names, sorted.
func (a *Adapter) Tools() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a tool and returns its envelope. Leaf-tool errors are
// captured in Result.Error, never swallowed and never retried.
func (a *Adapter) Invoke(ctx context.Context, name string, args map[string]string) Result {
	fn, ok := a.tools[name]
	if !ok {
		result := Result{Error: fmt.Sprintf("unknown tool %q", name)}
		a.record(ctx, name, args, result)
		return result
	}

	output, err := fn(ctx, args)
	result := Result{OK: err == nil, Output: output}
	if err != nil {
		result.Error = err.Error()
	}
	a.record(ctx, name, args, result)
	return result
}

func (a *Adapter) record(ctx context.Context, name string, args map[string]string, result Result) {
	outcome := "ok"
	if !result.OK {
		outcome = "failed"
	}
	metrics.ToolInvocations.WithLabelValues(name, outcome).Inc()

	if err := a.trail.Record(ctx, audit.Entry{
		Kind:  audit.KindToolInvocation,
		Tool:  name,
		Args:  args,
		Error: result.Error,
	}); err != nil {
		a.logger.Error("audit record failed", zap.String("tool", name), zap.Error(err))
	}
	a.logger.Debug("tool invoked",
		zap.String("tool", name),
		zap.Bool("ok", result.OK))
}
