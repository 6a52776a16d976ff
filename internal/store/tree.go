package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/axenox/Sketch/internal/ident"
	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
)

const dirPerm = 0o755

// MoveRecord is one entry visited by a move, as root-relative paths.
type MoveRecord struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// MoveResult lists every entry a subtree move visited, top-level first.
type MoveResult struct {
	MovedEntries []MoveRecord `json:"movedEntries"`
}

// MoveFileResult describes a single-file move.
type MoveFileResult struct {
	Src     string `json:"src"`
	Dst     string `json:"dst"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// DirectoryRename describes a renamed directory.
type DirectoryRename struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CreateDirectory creates name inside the existing directory parent.
func (s *Store) CreateDirectory(ctx context.Context, parent, name string) (_ *Entry, err error) {
	start := time.Now()
	defer func() { observe(ctx, "mkdir", start, err) }()

	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	parentPath := ident.Normalize(parent)
	parentAbs, err := s.Abs(parentPath)
	if err != nil {
		return nil, err
	}
	if !isDir(parentAbs) {
		return nil, fmt.Errorf("%w: %q", ErrNotADirectory, parentPath)
	}

	logical := ident.Join(parentPath, name)
	abs := filepath.Join(parentAbs, name)
	if exists(abs) {
		return nil, fmt.Errorf("%w: %q", ErrDirectoryAlreadyExists, logical)
	}
	if merr := os.Mkdir(abs, dirPerm); merr != nil {
		if errors.Is(merr, os.ErrExist) {
			return nil, fmt.Errorf("%w: %q", ErrDirectoryAlreadyExists, logical)
		}
		return nil, fmt.Errorf("%w: %q: %v", ErrCreateDirectoryFailed, logical, merr)
	}

	id := ident.Encode(logical)
	s.notify(ctx, Change{Op: OpCreate, Path: logical, ID: id})
	logging.WithContext(ctx).Info("created directory", logging.String("path", logical))

	return &Entry{
		Path:         logical,
		Kind:         KindDir,
		Name:         name,
		ID:           id,
		ModifiedTime: modTime(abs),
		Parents:      Breadcrumbs(logical),
	}, nil
}

// MoveSubtree moves the entry identified by srcID into destParent, creating
// destParent when missing. Directories are walked depth-first: each
// destination directory is created before the files inside it are moved,
// and the emptied source directories are removed deepest first. Existing
// destination directories are merged into.
//
// Moves are not atomic. When a file move fails the records collected so far
// are returned together with ErrMoveFailed.
func (s *Store) MoveSubtree(ctx context.Context, srcID, destParent string) (_ *MoveResult, err error) {
	start := time.Now()
	defer func() { observe(ctx, "move", start, err) }()

	src, srcAbs, err := s.resolveID(srcID)
	if err != nil {
		return nil, err
	}
	if src == "" {
		return nil, fmt.Errorf("%w: cannot move the root", ErrMoveFailed)
	}
	info, err := os.Lstat(srcAbs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, src)
	}

	parent := ident.Normalize(destParent)
	parentAbs, err := s.Abs(parent)
	if err != nil {
		return nil, err
	}

	result := &MoveResult{MovedEntries: []MoveRecord{}}
	if parent == ParentOf(src) {
		logging.WithContext(ctx).Debug("move to current parent is a no-op", logging.String("path", src))
		return result, nil
	}
	if info.IsDir() && (parent == src || strings.HasPrefix(parent, src+"/")) {
		return nil, fmt.Errorf("%w: cannot move %q into itself", ErrMoveFailed, src)
	}

	if merr := os.MkdirAll(parentAbs, dirPerm); merr != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCreateDirectoryFailed, parent, merr)
	}

	dst := ident.Join(parent, baseName(src))
	dstAbs := filepath.Join(parentAbs, filepath.Base(srcAbs))

	defer func() {
		metrics.RecordMovedEntries(len(result.MovedEntries))
		c := Change{Op: OpMove, Path: src, Dst: dst, ID: ident.Encode(dst), Err: err}
		s.notify(ctx, c)
	}()

	if !info.IsDir() {
		if rerr := os.Rename(srcAbs, dstAbs); rerr != nil {
			return result, fmt.Errorf("%w: %q: %v", ErrMoveFailed, src, rerr)
		}
		result.MovedEntries = append(result.MovedEntries, MoveRecord{Src: src, Dst: dst})
		return result, nil
	}

	if merr := os.MkdirAll(dstAbs, dirPerm); merr != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCreateDirectoryFailed, dst, merr)
	}
	result.MovedEntries = append(result.MovedEntries, MoveRecord{Src: src, Dst: dst})

	var dirs []string
	for n, werr := range walk(srcAbs) {
		if werr != nil {
			return result, fmt.Errorf("%w: %q: %v", ErrMoveFailed, s.rel(n.abs), werr)
		}
		rec := MoveRecord{Src: src + "/" + n.rel, Dst: dst + "/" + n.rel}
		target := filepath.Join(dstAbs, filepath.FromSlash(n.rel))

		if n.isDir {
			if merr := os.MkdirAll(target, dirPerm); merr != nil {
				return result, fmt.Errorf("%w: %q: %v", ErrMoveFailed, rec.Dst, merr)
			}
			dirs = append(dirs, n.abs)
		} else if rerr := os.Rename(n.abs, target); rerr != nil {
			return result, fmt.Errorf("%w: %q to %q: %v", ErrMoveFailed, rec.Src, rec.Dst, rerr)
		}
		result.MovedEntries = append(result.MovedEntries, rec)
	}

	// Pre-order reversed: children before their parents.
	slices.Reverse(dirs)
	for _, d := range append(dirs, srcAbs) {
		if rerr := os.Remove(d); rerr != nil {
			logging.WithContext(ctx).Warn("source directory left behind after move",
				logging.String("path", s.rel(d)),
				logging.Err(rerr),
			)
		}
	}

	logging.WithContext(ctx).Info("moved subtree",
		logging.String("src", src),
		logging.String("dst", dst),
		logging.Int("entries", len(result.MovedEntries)),
	)
	return result, nil
}

// MoveSingleFile renames the entry identified by srcID into destParent in
// one step, replacing an existing file of the same name.
func (s *Store) MoveSingleFile(ctx context.Context, srcID, destParent string) (_ *MoveFileResult, err error) {
	start := time.Now()
	defer func() { observe(ctx, "move_file", start, err) }()

	src, srcAbs, err := s.resolveID(srcID)
	if err != nil {
		return nil, err
	}
	if src == "" {
		return nil, fmt.Errorf("%w: cannot move the root", ErrMoveFailed)
	}
	if !exists(srcAbs) {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, src)
	}

	parent := ident.Normalize(destParent)
	parentAbs, err := s.Abs(parent)
	if err != nil {
		return nil, err
	}
	if merr := os.MkdirAll(parentAbs, dirPerm); merr != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCreateDirectoryFailed, parent, merr)
	}

	dst := ident.Join(parent, baseName(src))
	dstAbs := filepath.Join(parentAbs, filepath.Base(srcAbs))
	if rerr := os.Rename(srcAbs, dstAbs); rerr != nil {
		err = fmt.Errorf("%w: %q to %q: %v", ErrMoveFailed, src, dst, rerr)
		s.notify(ctx, Change{Op: OpMove, Path: src, Dst: dst, Err: err})
		return nil, err
	}

	id := ident.Encode(dst)
	s.notify(ctx, Change{Op: OpMove, Path: src, Dst: dst, ID: id})
	logging.WithContext(ctx).Info("moved scheme",
		logging.String("src", src),
		logging.String("dst", dst),
	)
	return &MoveFileResult{Src: src, Dst: dst, ID: id, Message: "Scheme moved"}, nil
}

// RenameDirectory renames the directory identified by id within its parent.
func (s *Store) RenameDirectory(ctx context.Context, id, newName string) (_ *DirectoryRename, err error) {
	start := time.Now()
	defer func() { observe(ctx, "rename_dir", start, err) }()

	name := strings.Trim(newName, `/\`)
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}

	src, srcAbs, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	if src == "" {
		return nil, fmt.Errorf("%w: cannot rename the root", ErrInvalidName)
	}
	if !isDir(srcAbs) {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, src)
	}

	dst := ident.Join(ParentOf(src), name)
	if dst == src {
		return &DirectoryRename{Path: dst, Name: name, ID: ident.Encode(dst), Message: "Directory unchanged"}, nil
	}
	dstAbs := filepath.Join(filepath.Dir(srcAbs), name)
	if exists(dstAbs) {
		return nil, fmt.Errorf("%w: %q", ErrDirectoryAlreadyExists, dst)
	}
	if rerr := os.Rename(srcAbs, dstAbs); rerr != nil {
		err = fmt.Errorf("%w: %q to %q: %v", ErrRenameFailed, src, dst, rerr)
		s.notify(ctx, Change{Op: OpRename, Path: src, Dst: dst, Err: err})
		return nil, err
	}

	newID := ident.Encode(dst)
	s.notify(ctx, Change{Op: OpRename, Path: src, Dst: dst, ID: newID})
	logging.WithContext(ctx).Info("renamed directory",
		logging.String("from", src),
		logging.String("to", dst),
	)
	return &DirectoryRename{
		Path:    dst,
		Name:    name,
		ID:      newID,
		Message: fmt.Sprintf("Successfully renamed %q to %q", src, dst),
	}, nil
}

// DeleteSubtree removes the directory identified by id, emptying it
// depth-first first. Targets that are not directories are left alone and
// reported as an invalid path; documents are deleted with Delete.
//
// The first nested directory switches the delete to recursive mode even when
// recursive is false, so a folder holding subfolders is always removed with
// them. Removal failures are collected into the outcome instead of being
// returned; only unresolvable identifiers fail.
func (s *Store) DeleteSubtree(ctx context.Context, id string, recursive bool) (_ Outcome, err error) {
	start := time.Now()
	defer func() { observe(ctx, "delete_tree", start, err) }()

	logical, abs, err := s.resolveID(id)
	if err != nil {
		return Outcome{}, err
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil || !info.IsDir() {
		return Outcome{Status: StatusError, Message: "Invalid path"}, nil
	}
	if logical == "" {
		return Outcome{Status: StatusError, Message: "The root folder cannot be deleted."}, nil
	}

	out := s.deleteDirectory(ctx, abs, recursive)

	c := Change{Op: OpDelete, Path: logical, ID: ident.Encode(logical)}
	if !out.OK() {
		c.Err = errors.New(out.Message)
	}
	s.notify(ctx, c)

	logging.WithContext(ctx).Info("deleted subtree",
		logging.String("path", logical),
		logging.String("status", string(out.Status)),
	)
	return out, nil
}

func (s *Store) deleteDirectory(ctx context.Context, abs string, recursive bool) Outcome {
	var failures []string
	var dirs []string
	for n, werr := range walk(abs) {
		if werr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.rel(n.abs), werr))
			continue
		}
		if n.isDir {
			if !recursive {
				logging.WithContext(ctx).Debug("nested directory found, deleting recursively",
					logging.String("path", s.rel(n.abs)),
				)
				recursive = true
			}
			dirs = append(dirs, n.abs)
			continue
		}
		if rerr := os.Remove(n.abs); rerr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.rel(n.abs), rerr))
		}
	}

	slices.Reverse(dirs)
	for _, d := range dirs {
		if rerr := os.Remove(d); rerr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.rel(d), rerr))
		}
	}
	metrics.RecordDeleteFailures(len(failures))

	rmErr := os.Remove(abs)
	if !exists(abs) {
		return Outcome{Status: StatusSuccess, Message: "The folder and its contents were successfully deleted."}
	}

	msg := "The folder could not be deleted because it is not empty."
	if len(failures) == 0 && rmErr != nil {
		msg = "An error occurred while deleting the folder: " + rmErr.Error()
	} else if len(failures) > 0 {
		msg += " Failed: " + strings.Join(failures, "; ")
	}
	return Outcome{Status: StatusError, Message: msg}
}
