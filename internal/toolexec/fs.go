package toolexec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrPathEscapes indicates a tool path resolves outside the configured
// base directory.
var ErrPathEscapes = errors.New("toolexec: path escapes base directory")

// maxReadSize caps fs_read output at 10MB.
const maxReadSize = 10 << 20

// fsTools confines filesystem tools to a base directory.
type fsTools struct {
	base string
}

func newFSTools(base string) (*fsTools, error) {
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("toolexec: resolve base path: %w", err)
	}
	return &fsTools{base: abs}, nil
}

// safePath resolves a tool-supplied relative path inside the base
// directory, rejecting traversal and absolute paths.
func (f *fsTools) safePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("toolexec: path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathEscapes, path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: %q contains traversal", ErrPathEscapes, path)
	}
	abs := filepath.Join(f.base, filepath.Clean(path))
	rel, err := filepath.Rel(f.base, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, path)
	}
	return abs, nil
}

func (f *fsTools) read(ctx context.Context, args map[string]string) (string, error) {
	path, err := f.safePath(args["path"])
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxReadSize {
		return "", fmt.Errorf("toolexec: %s exceeds read limit (%d bytes)", args["path"], info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *fsTools) write(ctx context.Context, args map[string]string) (string, error) {
	path, err := f.safePath(args["path"])
	if err != nil {
		return "", err
	}
	content := args["content"]
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), args["path"]), nil
}

func (f *fsTools) append(ctx context.Context, args map[string]string) (string, error) {
	path, err := f.safePath(args["path"])
	if err != nil {
		return "", err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer file.Close()

	content := args["content"]
	if _, err := file.WriteString(content); err != nil {
		return "", err
	}
	return fmt.Sprintf("appended %d bytes to %s", len(content), args["path"]), nil
}

func (f *fsTools) list(ctx context.Context, args map[string]string) (string, error) {
	dir := args["path"]
	if dir == "" {
		dir = "."
	}
	path, err := f.safePath(dir)
	if err != nil {
		return "", err
	}
	if recursive, _ := strconv.ParseBool(args["recursive"]); recursive {
		return f.listRecursive(path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// listRecursive walks the tree under an already-confined path and
// prints entries relative to it.
func (f *fsTools) listRecursive(root string) (string, error) {
	var b strings.Builder
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel += "/"
		}
		b.WriteString(rel)
		b.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func (f *fsTools) mkdir(ctx context.Context, args map[string]string) (string, error) {
	path, err := f.safePath(args["path"])
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("created %s", args["path"]), nil
}
