package membank

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the bank directory for edits made outside the store
// (a human editing tasks.md mid-session). Externally changed roles are
// surfaced as warnings on the next reconciliation pass.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu      sync.Mutex
	changed map[Role]struct{}
}

// NewWatcher starts watching the store's directory.
func NewWatcher(store *Store, logger *zap.Logger) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(store.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}

	w := &Watcher{
		store:   store,
		watcher: fw,
		logger:  logger,
		changed: make(map[Role]struct{}),
	}
	return w, nil
}

// Run consumes events until the context is cancelled or the underlying
// watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			role := roleForFilename(filepath.Base(event.Name))
			if role == "" {
				continue
			}
			w.mu.Lock()
			w.changed[role] = struct{}{}
			w.mu.Unlock()
			w.logger.Debug("bank file changed on disk",
				zap.String("role", string(role)),
				zap.String("op", event.Op.String()),
			)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("bank watcher error", zap.Error(err))
		}
	}
}

// DrainChanged returns the roles changed since the last call and resets
// the set.
func (w *Watcher) DrainChanged() []Role {
	w.mu.Lock()
	defer w.mu.Unlock()

	var roles []Role
	for _, role := range AllRoles() {
		if _, ok := w.changed[role]; ok {
			roles = append(roles, role)
		}
	}
	w.changed = make(map[Role]struct{})
	return roles
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func roleForFilename(name string) Role {
	for role, fn := range filenames {
		if fn == name {
			return role
		}
	}
	return ""
}
