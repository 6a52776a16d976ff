package store

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/axenox/Sketch/internal/ident"
)

// DocSuffix is the filename suffix of scheme documents.
const DocSuffix = ".schemio.json"

// Abs resolves a logical path to an absolute path under the store root.
func (s *Store) Abs(logical string) (string, error) {
	p := ident.Normalize(logical)
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, logical)
		}
	}
	if p == "" {
		return s.root, nil
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

// resolveID decodes id and resolves it under the root.
func (s *Store) resolveID(id string) (logical, abs string, err error) {
	logical, err = ident.Decode(id)
	if err != nil {
		return "", "", err
	}
	abs, err = s.Abs(logical)
	if err != nil {
		return "", "", err
	}
	return logical, abs, nil
}

// rel returns the root-relative, '/'-separated form of an absolute path.
func (s *Store) rel(abs string) string {
	r, err := filepath.Rel(s.root, abs)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

// ParentOf returns the folder portion of a logical path. Root-level paths
// and Root itself have Root ("") as parent.
func ParentOf(logical string) string {
	p := ident.Normalize(logical)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

// baseName returns the last segment of a logical path.
func baseName(logical string) string {
	p := ident.Normalize(logical)
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// DisplayName returns the name shown for a directory entry. Documents lose
// their suffix; directories keep their filename.
func DisplayName(filename string, isDocument bool) string {
	if isDocument {
		return strings.TrimSuffix(filename, DocSuffix)
	}
	return filename
}

// IsDocumentName reports whether filename carries the document suffix.
func IsDocumentName(filename string) bool {
	return strings.HasSuffix(filename, DocSuffix) && len(filename) > len(DocSuffix)
}

// Breadcrumbs returns the identifiers of every proper ancestor of logical
// below Root, ordered from Root down. The path itself is not included.
func Breadcrumbs(logical string) []string {
	p := ident.Normalize(logical)
	crumbs := []string{}
	if p == "" {
		return crumbs
	}
	segments := strings.Split(p, "/")
	for i := 1; i < len(segments); i++ {
		crumbs = append(crumbs, ident.Encode(strings.Join(segments[:i], "/")))
	}
	return crumbs
}

// validName reports whether name can be used as a single path segment.
// Names are taken as given, so surrounding whitespace is rejected.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// modTime returns the modification time of abs truncated to seconds, or nil
// when it cannot be read.
func modTime(abs string) *time.Time {
	info, err := os.Stat(abs)
	if err != nil {
		return nil
	}
	return infoTime(info)
}

func infoTime(info os.FileInfo) *time.Time {
	t := info.ModTime().UTC().Truncate(time.Second)
	return &t
}

func isDir(abs string) bool {
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}

func exists(abs string) bool {
	_, err := os.Lstat(abs)
	return err == nil
}
