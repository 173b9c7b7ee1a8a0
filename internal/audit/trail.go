// Package audit provides the append-only audit trail.
//
// The trail is the only cross-session memory besides the memory bank
// documents themselves: document writes, applied sync actions, mode
// transitions, and tool invocations are all recorded here so a later
// session can explain divergence and recover from a partially applied
// proposal.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind categorizes audit entries.
type Kind string

const (
	KindDocumentWrite  Kind = "document_write"
	KindDocumentAppend Kind = "document_append"
	KindActionApplied  Kind = "action_applied"
	KindActionFailed   Kind = "action_failed"
	KindToolInvocation Kind = "tool_invocation"
	KindModeTransition Kind = "mode_transition"
)

// Entry is a single audit record. Zero-valued fields are omitted from
// the serialized form.
type Entry struct {
	ID     string            `json:"id"`
	Time   time.Time         `json:"time"`
	Kind   Kind              `json:"kind"`
	Role   string            `json:"role,omitempty"`
	Bytes  int               `json:"bytes,omitempty"`
	TaskID string            `json:"task_id,omitempty"`
	Action string            `json:"action,omitempty"`
	Tool   string            `json:"tool,omitempty"`
	Args   map[string]string `json:"args,omitempty"`
	Detail string            `json:"detail,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Trail is an append-only JSONL audit log. All writes are serialized.
type Trail struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewTrail opens (or creates) the trail at path.
func NewTrail(path string, logger *zap.Logger) (*Trail, error) {
	if path == "" {
		return nil, errors.New("audit trail path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Trail{path: path, logger: logger}, nil
}

// Record appends an entry to the trail. ID and Time are filled in when
// empty. The write is fsynced before returning; the trail must survive
// a crash mid-session.
func (t *Trail) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit trail: %w", err)
	}

	t.logger.Debug("audit entry recorded",
		zap.String("kind", string(e.Kind)),
		zap.String("id", e.ID),
	)
	return nil
}

// Replay returns all entries in append order. Corrupt lines are skipped
// with a warning; a torn final line from a crash must not poison replay.
func (t *Trail) Replay() ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.logger.Warn("skipping corrupt audit entry",
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit trail: %w", err)
	}
	return entries, nil
}

// LastApplied returns the most recent action_applied entry, if any.
func (t *Trail) LastApplied() (Entry, bool, error) {
	entries, err := t.Replay()
	if err != nil {
		return Entry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == KindActionApplied {
			return entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

// AppliedSince returns action_applied entries newer than the cutoff.
func (t *Trail) AppliedSince(cutoff time.Time) ([]Entry, error) {
	entries, err := t.Replay()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.Kind == KindActionApplied && e.Time.After(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}
