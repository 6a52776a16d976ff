package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/auth"
	"github.com/axenox/Sketch/internal/events"
	"github.com/axenox/Sketch/internal/journal"
	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
	"github.com/axenox/Sketch/internal/protocol"
	"github.com/axenox/Sketch/internal/store"
)

// ErrInvalidTenant is returned for vendor or alias values that are not a
// single safe path segment.
var ErrInvalidTenant = errors.New("invalid tenant")

// sketchesDir is the folder below <vendor>/<alias> that holds a tenant's
// documents.
const sketchesDir = "Sketches"

// Registry lazily opens one store per tenant ("vendor/alias") rooted at
// <dataDir>/<vendor>/<alias>/Sketches.
type Registry struct {
	dataDir     string
	createDirs  bool
	stores      *xsync.Map[string, *store.Store]
	broadcaster *events.Broadcaster
	journal     journal.Journal
}

// NewRegistry creates a registry. broadcaster and j may be nil.
func NewRegistry(dataDir string, createDirs bool, broadcaster *events.Broadcaster, j journal.Journal) *Registry {
	if j == nil {
		j = journal.Nop{}
	}
	return &Registry{
		dataDir:     dataDir,
		createDirs:  createDirs,
		stores:      xsync.NewMap[string, *store.Store](),
		broadcaster: broadcaster,
		journal:     j,
	}
}

// Open returns the store of vendor/alias, creating its root first when the
// registry was configured to do so.
func (r *Registry) Open(ctx context.Context, vendor, alias string) (*store.Store, error) {
	if !validSegment(vendor) || !validSegment(alias) {
		return nil, fmt.Errorf("%w: %q/%q", ErrInvalidTenant, vendor, alias)
	}
	tenant := vendor + "/" + alias
	if st, ok := r.stores.Load(tenant); ok {
		return st, nil
	}

	root := filepath.Join(r.dataDir, vendor, alias, sketchesDir)
	if r.createDirs {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create tenant root %s: %w", root, err)
		}
	}
	st, err := store.New(root, store.WithChangeHook(r.changeHook(tenant)))
	if err != nil {
		return nil, err
	}

	st, loaded := r.stores.LoadOrStore(tenant, st)
	if !loaded {
		metrics.SetTenantsOpen(r.stores.Size())
		logging.WithContext(ctx).Info("opened tenant",
			zap.String("tenant", tenant),
			zap.String("root", st.Root()),
		)
	}
	return st, nil
}

// Len returns the number of open tenants.
func (r *Registry) Len() int {
	return r.stores.Size()
}

// changeHook publishes successful mutations and journals every attempt.
func (r *Registry) changeHook(tenant string) func(context.Context, store.Change) {
	return func(ctx context.Context, c store.Change) {
		if c.Err == nil && r.broadcaster != nil {
			r.broadcaster.Publish(events.Event{
				Type:   string(c.Op),
				Tenant: tenant,
				Path:   c.Path,
				Dst:    c.Dst,
				ID:     c.ID,
			})
		}

		entry := protocol.JournalEntry{
			Op:        string(c.Op),
			Tenant:    tenant,
			Path:      c.Path,
			Dst:       c.Dst,
			DocID:     c.ID,
			Outcome:   journal.OutcomeSuccess,
			Subject:   auth.Subject(ctx),
			RequestID: logging.GetRequestID(ctx),
		}
		if c.Err != nil {
			entry.Outcome = journal.OutcomeError
			entry.Message = c.Err.Error()
		}
		if err := r.journal.Record(ctx, entry); err != nil {
			logging.WithContext(ctx).Warn("journal record failed",
				zap.String("tenant", tenant),
				zap.String("op", entry.Op),
				zap.Error(err),
			)
		}
	}
}

// validSegment accepts [A-Za-z0-9._-]+ except "." and "..".
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
