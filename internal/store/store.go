// Package store implements the filesystem-backed scheme store: path
// resolution, directory listings, document reads and writes, and the
// recursive tree operations (move, rename, delete).
//
// The filesystem under the store root is the only source of truth. No
// in-process lock is taken; concurrent writers race at the filesystem level.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
)

// ChangeOp names the kind of a mutation.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpModify ChangeOp = "modify"
	OpRename ChangeOp = "rename"
	OpMove   ChangeOp = "move"
	OpDelete ChangeOp = "delete"
)

// Change describes a mutation after it was attempted. Paths are relative
// filesystem paths with '/' separators. Err is nil on success.
type Change struct {
	Op   ChangeOp
	Path string
	Dst  string
	ID   string
	Err  error
}

// Store is a scheme store rooted at one directory. The root never changes
// after construction.
type Store struct {
	root     string
	onChange func(context.Context, Change)
}

// Option configures a Store.
type Option func(*Store)

// WithChangeHook registers fn to be called after every mutation.
func WithChangeHook(fn func(context.Context, Change)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// New creates a store rooted at root, which must be an existing directory.
func New(root string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	s := &Store{root: abs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) notify(ctx context.Context, c Change) {
	if s.onChange != nil {
		s.onChange(ctx, c)
	}
}

// observe records metrics for a finished operation and logs failures.
func observe(ctx context.Context, op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, time.Since(start), err == nil)
	if err != nil {
		logging.WithContext(ctx).Debug("store operation failed",
			logging.String("op", op),
			logging.Err(err),
		)
	}
}
