package membank

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/audit"
)

// Store errors.
var (
	ErrInvalidRole = errors.New("invalid document role")
	ErrNotFound    = errors.New("document not found")
)

// Store is the typed accessor over the memory bank directory. Bodies are
// always replaced in full, never merged; all writes are serialized
// through one in-process lock (a session is single-agent by design) and
// recorded to the audit trail.
type Store struct {
	dir    string
	trail  *audit.Trail
	logger *zap.Logger

	mu sync.Mutex
}

// NewStore creates a store over dir, creating the directory if needed.
func NewStore(dir string, trail *audit.Trail, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("bank directory is required")
	}
	if trail == nil {
		return nil, errors.New("audit trail is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create bank directory: %w", err)
	}
	return &Store{dir: dir, trail: trail, logger: logger}, nil
}

// Dir returns the bank directory.
func (s *Store) Dir() string {
	return s.dir
}

// Init creates every missing document from its first-run template.
// Existing documents are left untouched.
func (s *Store) Init(ctx context.Context) error {
	for _, role := range AllRoles() {
		if _, err := os.Stat(s.path(role)); err == nil {
			continue
		}
		if err := s.Write(ctx, role, role.Template()); err != nil {
			return fmt.Errorf("failed to init %s: %w", role, err)
		}
	}
	return nil
}

// LoadAll loads every document in dependency order. A missing file is
// created empty from its template, never treated as fatal.
func (s *Store) LoadAll(ctx context.Context) (map[Role]Document, error) {
	docs := make(map[Role]Document, len(filenames))
	for _, role := range AllRoles() {
		doc, err := s.Load(ctx, role)
		if errors.Is(err, ErrNotFound) {
			if err := s.Write(ctx, role, role.Template()); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", role, err)
			}
			doc, err = s.Load(ctx, role)
			if err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		docs[role] = doc
	}
	return docs, nil
}

// Load reads one document. Returns ErrNotFound if the file is absent.
func (s *Store) Load(ctx context.Context, role Role) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if !role.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	path := s.path(role)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, role)
		}
		return Document{}, fmt.Errorf("failed to stat %s: %w", role, err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", role, err)
	}

	return Document{
		Role:         role,
		Body:         string(body),
		LastModified: info.ModTime(),
	}, nil
}

// Write replaces the full body of a document and updates lastModified.
func (s *Store) Write(ctx context.Context, role Role, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(role), []byte(body), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", role, err)
	}

	if err := s.trail.Record(ctx, audit.Entry{
		Kind:  audit.KindDocumentWrite,
		Role:  string(role),
		Bytes: len(body),
	}); err != nil {
		return fmt.Errorf("failed to audit write of %s: %w", role, err)
	}

	s.logger.Debug("document written",
		zap.String("role", string(role)),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Append concatenates fragment onto the document. Pure suffix append:
// no dedup, no structural parsing. Creates the file if absent.
func (s *Store) Append(ctx context.Context, role Role, fragment string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(role), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", role, err)
	}
	defer f.Close()

	if _, err := f.WriteString(fragment); err != nil {
		return fmt.Errorf("failed to append to %s: %w", role, err)
	}

	if err := s.trail.Record(ctx, audit.Entry{
		Kind:  audit.KindDocumentAppend,
		Role:  string(role),
		Bytes: len(fragment),
	}); err != nil {
		return fmt.Errorf("failed to audit append to %s: %w", role, err)
	}

	s.logger.Debug("document appended",
		zap.String("role", string(role)),
		zap.Int("bytes", len(fragment)),
	)
	return nil
}

func (s *Store) path(role Role) string {
	return filepath.Join(s.dir, role.Filename())
}
