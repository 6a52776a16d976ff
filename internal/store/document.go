package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/axenox/Sketch/internal/ident"
	"github.com/axenox/Sketch/internal/logging"
)

// Document is a scheme as stored on disk: a JSON object. Numbers are kept as
// json.Number so they round-trip exactly.
type Document map[string]any

// Name returns the document's "name" field, or "" if absent.
func (d Document) Name() string {
	name, _ := d["name"].(string)
	return name
}

// ID returns the document's "id" field, or "" if absent.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// DocumentView wraps a document with its location, as returned to clients
// that open a document by identifier.
type DocumentView struct {
	FolderPath   string     `json:"folderPath"`
	ID           string     `json:"id"`
	ModifiedTime *time.Time `json:"modifiedTime"`
	Scheme       Document   `json:"scheme"`
}

// RenameResult carries the identifier of a renamed entry.
type RenameResult struct {
	ID string `json:"id"`
}

// Status is the result kind of a soft-failing delete.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// Outcome reports the result of a delete without raising filesystem
// conditions as errors.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// documentPath returns the logical path of a document file, adding the
// suffix when it is missing.
func documentPath(logical string) string {
	p := ident.Normalize(logical)
	if !strings.HasSuffix(p, DocSuffix) {
		p += DocSuffix
	}
	return p
}

// ReadByPath reads the document at logical. The suffix may be omitted. The
// stored id and name are replaced by values derived from the path.
func (s *Store) ReadByPath(ctx context.Context, logical string) (_ Document, err error) {
	start := time.Now()
	defer func() { observe(ctx, "read", start, err) }()

	p := documentPath(logical)
	abs, err := s.Abs(p)
	if err != nil {
		return nil, err
	}
	return readDocument(abs, p)
}

// ReadByID reads the document identified by id.
func (s *Store) ReadByID(ctx context.Context, id string) (Document, error) {
	logical, err := ident.Decode(id)
	if err != nil {
		return nil, err
	}
	return s.ReadByPath(ctx, logical)
}

// Open reads the document identified by id together with its folder and
// modification time. The view carries id as requested, also when it omits
// the document suffix.
func (s *Store) Open(ctx context.Context, id string) (*DocumentView, error) {
	doc, err := s.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logical, _ := ident.Decode(doc.ID())
	abs, _ := s.Abs(logical)
	return &DocumentView{
		FolderPath:   ParentOf(logical),
		ID:           id,
		ModifiedTime: modTime(abs),
		Scheme:       doc,
	}, nil
}

func readDocument(abs, logical string) (Document, error) {
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, logical)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, logical)
		}
		return nil, fmt.Errorf("%w: %q: %v", ErrDocumentUnreadable, logical, err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDocumentUnreadable, logical, err)
	}
	doc["id"] = ident.Encode(logical)
	doc["name"] = DisplayName(filepath.Base(abs), true)
	return doc, nil
}

func decodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return doc, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write stores doc as <parent>/<doc.name>.schemio.json, overwriting any
// existing file. The parent directory must exist. The returned document has
// its id assigned.
func (s *Store) Write(ctx context.Context, parent string, doc Document) (_ Document, err error) {
	start := time.Now()
	defer func() { observe(ctx, "write", start, err) }()

	name := doc.Name()
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, doc.Name())
	}

	parentPath := ident.Normalize(parent)
	parentAbs, err := s.Abs(parentPath)
	if err != nil {
		return nil, err
	}
	if !isDir(parentAbs) {
		return nil, fmt.Errorf("%w: %q", ErrNotADirectory, parentPath)
	}

	logical := ident.Join(parentPath, name+DocSuffix)
	abs := filepath.Join(parentAbs, name+DocSuffix)
	existed := exists(abs)

	doc["id"] = ident.Encode(logical)
	doc["name"] = name

	data, err := encodeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", logical, err)
	}
	if err := writeFileAtomic(parentAbs, abs, data); err != nil {
		return nil, fmt.Errorf("write %q: %w", logical, err)
	}

	op := OpCreate
	if existed {
		op = OpModify
	}
	s.notify(ctx, Change{Op: op, Path: logical, ID: doc.ID()})

	logging.WithContext(ctx).Debug("document written",
		logging.String("path", logical),
		logging.Int("bytes", len(data)),
	)
	return doc, nil
}

// writeFileAtomic writes data to a temp file in dir and renames it to dst.
func writeFileAtomic(dir, dst string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".schemio-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// WriteByID writes doc into the folder of the document identified by id.
// Without a name in doc, the identified document's own name is kept.
func (s *Store) WriteByID(ctx context.Context, id string, doc Document) (Document, error) {
	logical, err := ident.Decode(id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	if doc.Name() == "" {
		doc["name"] = DisplayName(baseName(logical), true)
	}
	return s.Write(ctx, ParentOf(logical), doc)
}

// Rename renames the document or directory identified by id within its
// folder. Documents keep their suffix. The old identifier stops resolving
// immediately; the result carries the new one.
func (s *Store) Rename(ctx context.Context, id, newName string) (_ *RenameResult, err error) {
	start := time.Now()
	defer func() { observe(ctx, "rename", start, err) }()

	logical, abs, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	if logical == "" {
		return nil, fmt.Errorf("%w: cannot rename the root", ErrInvalidName)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, logical)
	}

	name := DisplayName(newName, true)
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	if !info.IsDir() && IsDocumentName(baseName(logical)) {
		name += DocSuffix
	}

	dstLogical := ident.Join(ParentOf(logical), name)
	if dstLogical == logical {
		return &RenameResult{ID: ident.Encode(logical)}, nil
	}
	dstAbs := filepath.Join(filepath.Dir(abs), name)
	if exists(dstAbs) {
		err = fmt.Errorf("%w: %q already exists", ErrRenameFailed, dstLogical)
		s.notify(ctx, Change{Op: OpRename, Path: logical, Dst: dstLogical, Err: err})
		return nil, err
	}
	if rerr := os.Rename(abs, dstAbs); rerr != nil {
		err = fmt.Errorf("%w: %q: %v", ErrRenameFailed, logical, rerr)
		s.notify(ctx, Change{Op: OpRename, Path: logical, Dst: dstLogical, Err: err})
		return nil, err
	}

	newID := ident.Encode(dstLogical)
	s.notify(ctx, Change{Op: OpRename, Path: logical, Dst: dstLogical, ID: newID})
	logging.WithContext(ctx).Info("renamed entry",
		logging.String("from", logical),
		logging.String("to", dstLogical),
	)
	return &RenameResult{ID: newID}, nil
}

// Delete removes the single file at logical. Filesystem conditions are
// reported in the outcome; only unresolvable paths fail.
func (s *Store) Delete(ctx context.Context, logical string) (_ Outcome, err error) {
	start := time.Now()
	defer func() { observe(ctx, "delete", start, err) }()

	p := ident.Normalize(logical)
	abs, err := s.Abs(p)
	if err != nil {
		return Outcome{}, err
	}

	info, statErr := os.Lstat(abs)
	if statErr != nil || info.IsDir() {
		return Outcome{Status: StatusError, Message: "Invalid path"}, nil
	}

	if rerr := os.Remove(abs); rerr != nil {
		out := Outcome{Status: StatusError, Message: "Failed to delete file: " + rerr.Error()}
		s.notify(ctx, Change{Op: OpDelete, Path: p, ID: ident.Encode(p), Err: errors.New(out.Message)})
		return out, nil
	}

	s.notify(ctx, Change{Op: OpDelete, Path: p, ID: ident.Encode(p)})
	logging.WithContext(ctx).Info("deleted document", logging.String("path", p))
	return Outcome{Status: StatusSuccess, Message: "File deleted successfully"}, nil
}
