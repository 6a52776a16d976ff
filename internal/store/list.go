package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/axenox/Sketch/internal/ident"
	"github.com/axenox/Sketch/internal/logging"
)

// Kind classifies a directory entry.
type Kind string

const (
	KindDir Kind = "dir"
	KindDoc Kind = "doc"
)

// Entry is one child of a listed directory.
//
// Directories always serialize children (empty, filled lazily by clients) and
// their parent chain; documents carry neither.
type Entry struct {
	Path         string
	Kind         Kind
	Name         string
	ID           string
	ModifiedTime *time.Time
	Parents      []string
}

type dirEntryJSON struct {
	Path         string     `json:"path"`
	Kind         Kind       `json:"kind"`
	Name         string     `json:"name"`
	ID           string     `json:"id"`
	ModifiedTime *time.Time `json:"modifiedTime"`
	Children     []Entry    `json:"children"`
	Parents      []string   `json:"parents"`
}

type docEntryJSON struct {
	Path         string     `json:"path"`
	Kind         Kind       `json:"kind"`
	Name         string     `json:"name"`
	ID           string     `json:"id"`
	ModifiedTime *time.Time `json:"modifiedTime"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Kind == KindDir {
		parents := e.Parents
		if parents == nil {
			parents = []string{}
		}
		return json.Marshal(dirEntryJSON{
			Path:         e.Path,
			Kind:         e.Kind,
			Name:         e.Name,
			ID:           e.ID,
			ModifiedTime: e.ModifiedTime,
			Children:     []Entry{},
			Parents:      parents,
		})
	}
	return json.Marshal(docEntryJSON{
		Path:         e.Path,
		Kind:         e.Kind,
		Name:         e.Name,
		ID:           e.ID,
		ModifiedTime: e.ModifiedTime,
	})
}

// Listing is the content of one directory.
type Listing struct {
	ID       string   `json:"id"`
	Path     string   `json:"path"`
	ViewOnly bool     `json:"viewOnly"`
	Entries  []Entry  `json:"entries"`
	Parents  []string `json:"parents"`
}

// List returns the immediate children of the directory at logical, sorted by
// filename. Non-root listings start with a ".." entry pointing at the parent
// directory. Files that are neither directories nor documents are skipped.
func (s *Store) List(ctx context.Context, logical string) (_ *Listing, err error) {
	start := time.Now()
	defer func() { observe(ctx, "list", start, err) }()

	p := ident.Normalize(logical)
	abs, err := s.Abs(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNotADirectory, p)
	}

	children, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrNotADirectory, p, err)
	}

	// One chain, ending at the listed directory, serves the listing and
	// every directory entry in it.
	chain := Breadcrumbs(p)
	if p != "" {
		chain = append(chain, ident.Encode(p))
	}

	entries := make([]Entry, 0, len(children)+1)
	if p != "" {
		parent := ParentOf(p)
		entries = append(entries, Entry{
			Path:         parent,
			Kind:         KindDir,
			Name:         "..",
			ID:           ident.Encode(parent),
			ModifiedTime: modTime(filepathOrRoot(s, parent)),
			Parents:      chain,
		})
	}

	for _, child := range children {
		name := child.Name()
		childPath := ident.Join(p, name)

		info, err := child.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}

		// Follow symlinks for classification.
		isDirectory := child.IsDir()
		if child.Type()&os.ModeSymlink != 0 {
			isDirectory = isDir(filepathOrRoot(s, childPath))
		}

		switch {
		case isDirectory:
			entries = append(entries, Entry{
				Path:         childPath,
				Kind:         KindDir,
				Name:         DisplayName(name, false),
				ID:           ident.Encode(childPath),
				ModifiedTime: infoTime(info),
				Parents:      chain,
			})
		case IsDocumentName(name):
			entries = append(entries, Entry{
				Path:         childPath,
				Kind:         KindDoc,
				Name:         DisplayName(name, true),
				ID:           ident.Encode(childPath),
				ModifiedTime: infoTime(info),
			})
		}
	}

	logging.WithContext(ctx).Debug("listed directory",
		logging.String("path", p),
		logging.Int("entries", len(entries)),
	)

	return &Listing{
		ID:      ident.Encode(p),
		Path:    p,
		Entries: entries,
		Parents: chain,
	}, nil
}

func filepathOrRoot(s *Store, logical string) string {
	abs, err := s.Abs(logical)
	if err != nil {
		return s.root
	}
	return abs
}
