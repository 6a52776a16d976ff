package store

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/axenox/Sketch/internal/ident"
	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
)

// DefaultPattern matches every document.
const DefaultPattern = "*" + DocSuffix

// SearchHit is one document found by ListAll.
type SearchHit struct {
	FSPath       string     `json:"fsPath"`
	ID           string     `json:"id"`
	Link         string     `json:"link"`
	LowerName    string     `json:"lowerName"`
	Name         string     `json:"name"`
	ModifiedTime *time.Time `json:"modifiedTime"`
}

// SearchResult is a single page holding every hit.
type SearchResult struct {
	Kind           string      `json:"kind"`
	Page           int         `json:"page"`
	TotalPages     int         `json:"totalPages"`
	TotalResults   int         `json:"totalResults"`
	ResultsPerPage int         `json:"resultsPerPage"`
	Results        []SearchHit `json:"results"`
}

// ListAll walks the whole tree and returns the files whose base name matches
// the glob pattern (DefaultPattern when empty). A non-empty query keeps a
// file when its display name contains the query, or failing that when its
// raw content does. Both checks ignore case.
func (s *Store) ListAll(ctx context.Context, pattern, query string) (_ *SearchResult, err error) {
	start := time.Now()
	defer func() { observe(ctx, "search", start, err) }()

	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrBadRequest, pattern, err)
	}
	needle := strings.ToLower(query)

	hits := []SearchHit{}
	for n, err := range walk(s.root) {
		if err != nil {
			logging.WithContext(ctx).Warn("search skipped unreadable entry",
				logging.String("path", n.abs),
				logging.Err(err),
			)
			continue
		}
		if n.isDir || !n.regular {
			continue
		}
		filename := filepath.Base(n.abs)
		if ok, _ := filepath.Match(pattern, filename); !ok {
			continue
		}

		name := DisplayName(filename, true)
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			if !contentContains(n.abs, needle) {
				continue
			}
		}

		fsPath := s.rel(n.abs)
		id := ident.Encode(fsPath)
		hits = append(hits, SearchHit{
			FSPath:       fsPath,
			ID:           id,
			Link:         "/docs/" + id,
			LowerName:    strings.ToLower(name),
			Name:         name,
			ModifiedTime: n.modTime,
		})
	}

	metrics.RecordSearchResults(len(hits))
	logging.WithContext(ctx).Debug("searched documents",
		logging.String("pattern", pattern),
		logging.String("query", query),
		logging.Int("results", len(hits)),
	)

	return &SearchResult{
		Kind:           "page",
		Page:           1,
		TotalPages:     1,
		TotalResults:   len(hits),
		ResultsPerPage: len(hits),
		Results:        hits,
	}, nil
}

func contentContains(abs, needle string) bool {
	data, err := os.ReadFile(abs)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), needle)
}

// node is one entry produced by walk.
type node struct {
	abs     string
	rel     string // relative to the walk root, '/'-separated
	isDir   bool
	regular bool
	modTime *time.Time
}

// walk yields every entry below root in depth-first pre-order, lexically
// sorted within each directory. The root itself is not yielded. Directory
// contents are read after the directory is yielded, so consumers may create
// or move entries as they go.
func walk(root string) iter.Seq2[node, error] {
	return func(yield func(node, error) bool) {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(node{abs: p}, err) {
					return filepath.SkipAll
				}
				if p == root {
					return filepath.SkipAll
				}
				return nil
			}
			if p == root {
				return nil
			}
			rel, _ := filepath.Rel(root, p)
			n := node{
				abs:     p,
				rel:     filepath.ToSlash(rel),
				isDir:   d.IsDir(),
				regular: d.Type().IsRegular(),
			}
			if info, err := d.Info(); err == nil {
				n.modTime = infoTime(info)
			}
			if !yield(n, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}
