package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fyrsmithlabs/membankd/internal/config"
)

// defaultToolTimeout bounds a single tool process when no timeout is
// configured.
const defaultToolTimeout = 2 * time.Minute

// runner executes one external command and returns its combined
// output. Tests substitute a fake.
type runner func(ctx context.Context, bin string, args ...string) (string, error)

// shellTools wraps the dependency manager (uv) and linter (ruff).
type shellTools struct {
	uvBin   string
	ruffBin string
	timeout time.Duration
	run     runner
}

func newShellTools(cfg config.ToolsConfig) *shellTools {
	uv := cfg.UVBin
	if uv == "" {
		uv = "uv"
	}
	ruff := cfg.RuffBin
	if ruff == "" {
		ruff = "ruff"
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	s := &shellTools{uvBin: uv, ruffBin: ruff, timeout: timeout}
	s.run = s.runCommand
	return s
}

func (s *shellTools) runCommand(ctx context.Context, bin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s timed out after %s", bin, s.timeout)
		}
		return output, fmt.Errorf("%s: %w", bin, err)
	}
	return output, nil
}

func (s *shellTools) depsSync(ctx context.Context, args map[string]string) (string, error) {
	return s.run(ctx, s.uvBin, "sync")
}

func (s *shellTools) depsAdd(ctx context.Context, args map[string]string) (string, error) {
	pkg := strings.TrimSpace(args["package"])
	if pkg == "" {
		return "", fmt.Errorf("toolexec: package is required")
	}
	return s.run(ctx, s.uvBin, "add", pkg)
}

func (s *shellTools) depsRemove(ctx context.Context, args map[string]string) (string, error) {
	pkg := strings.TrimSpace(args["package"])
	if pkg == "" {
		return "", fmt.Errorf("toolexec: package is required")
	}
	return s.run(ctx, s.uvBin, "remove", pkg)
}

func (s *shellTools) lintCheck(ctx context.Context, args map[string]string) (string, error) {
	cmdArgs := []string{"check", "."}
	if args["fix"] == "true" {
		cmdArgs = append(cmdArgs, "--fix")
	}
	return s.run(ctx, s.ruffBin, cmdArgs...)
}

func (s *shellTools) lintFormat(ctx context.Context, args map[string]string) (string, error) {
	return s.run(ctx, s.ruffBin, "format", ".")
}
