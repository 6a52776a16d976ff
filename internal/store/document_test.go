package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axenox/Sketch/internal/ident"
)

func readRaw(t *testing.T, s *Store, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.Root(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestWriteThenRead(t *testing.T) {
	s := newTestStore(t)
	mkdir(t, s, "Folder")

	written, err := s.Write(ctx, "Folder", Document{
		"name":  "Plan",
		"id":    "bogus",
		"items": []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, docID("Folder/Plan"), written.ID())
	assert.True(t, pathExists(s, "Folder/Plan.schemio.json"))

	got, err := s.ReadByPath(ctx, "Folder/Plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan", got.Name())
	assert.Equal(t, docID("Folder/Plan"), got.ID())

	byID, err := s.ReadByID(ctx, written.ID())
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestReadIgnoresStoredIdentity(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Copied.schemio.json", `{"id":"stale","name":"Original","n":1}`)

	doc, err := s.ReadByPath(ctx, "Copied.schemio.json")
	require.NoError(t, err)
	assert.Equal(t, "Copied", doc.Name())
	assert.Equal(t, docID("Copied"), doc.ID())
}

func TestReadPreservesNumbers(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "N.schemio.json", `{"big":12345678901234567890,"frac":0.1000000000000000055511151231257827}`)

	doc, err := s.ReadByPath(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), doc["big"])

	_, err = s.Write(ctx, "", doc)
	require.NoError(t, err)
	raw := readRaw(t, s, "N.schemio.json")
	assert.Contains(t, raw, "12345678901234567890")
	assert.Contains(t, raw, "0.1000000000000000055511151231257827")
}

func TestReadErrors(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Broken.schemio.json", `{"unterminated":`)
	mkfile(t, s, "Array.schemio.json", `[1,2]`)
	mkfile(t, s, "Null.schemio.json", `null`)
	mkfile(t, s, "Trailing.schemio.json", `{} {}`)
	mkdir(t, s, "Dir.schemio.json")

	_, err := s.ReadByPath(ctx, "Missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = s.ReadByPath(ctx, "Dir")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	for _, name := range []string{"Broken", "Array", "Null", "Trailing"} {
		_, err = s.ReadByPath(ctx, name)
		assert.ErrorIs(t, err, ErrDocumentUnreadable, name)
	}

	_, err = s.ReadByID(ctx, "not base64!")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)

	_, err = s.ReadByID(ctx, ident.Encode("../../etc/passwd"))
	assert.ErrorIs(t, err, ErrPathEscapesRoot)
}

func TestWriteFormat(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Write(ctx, "", Document{
		"name":        "Схема",
		"description": "<b>a & b</b>",
	})
	require.NoError(t, err)

	raw := readRaw(t, s, "Схема.schemio.json")
	assert.Contains(t, raw, `"name": "Схема"`)
	assert.Contains(t, raw, `"description": "<b>a & b</b>"`)
	assert.True(t, strings.HasPrefix(raw, "{\n    \""), "four space indent: %q", raw)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteOverwrites(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Write(ctx, "", Document{"name": "A", "v": 1})
	require.NoError(t, err)
	_, err = s.Write(ctx, "", Document{"name": "A", "v": 2})
	require.NoError(t, err)

	doc, err := s.ReadByPath(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), doc["v"])
}

func TestWriteErrors(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "file.txt", "")

	tests := []struct {
		name   string
		parent string
		doc    Document
		want   error
	}{
		{"missing name", "", Document{}, ErrInvalidName},
		{"empty name", "", Document{"name": " "}, ErrInvalidName},
		{"non-string name", "", Document{"name": 7}, ErrInvalidName},
		{"separator", "", Document{"name": "a/b"}, ErrInvalidName},
		{"padded", "", Document{"name": " Padded "}, ErrInvalidName},
		{"dot dot", "", Document{"name": ".."}, ErrInvalidName},
		{"missing parent", "nope", Document{"name": "A"}, ErrNotADirectory},
		{"file parent", "file.txt", Document{"name": "A"}, ErrNotADirectory},
		{"escape", "..", Document{"name": "A"}, ErrPathEscapesRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Write(ctx, tt.parent, tt.doc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWriteByID(t *testing.T) {
	s := newTestStore(t)
	mkdir(t, s, "F")
	orig, err := s.Write(ctx, "F", Document{"name": "Doc", "v": 1})
	require.NoError(t, err)

	// Without a name the document keeps its own.
	_, err = s.WriteByID(ctx, orig.ID(), Document{"v": 2})
	require.NoError(t, err)
	doc, err := s.ReadByPath(ctx, "F/Doc")
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), doc["v"])

	// With a name it lands next to the original.
	other, err := s.WriteByID(ctx, orig.ID(), Document{"name": "Other"})
	require.NoError(t, err)
	assert.Equal(t, docID("F/Other"), other.ID())
	assert.True(t, pathExists(s, "F/Doc.schemio.json"))
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	mkdir(t, s, "F")
	doc, err := s.Write(ctx, "F", Document{"name": "Doc"})
	require.NoError(t, err)

	v, err := s.Open(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "F", v.FolderPath)
	assert.Equal(t, doc.ID(), v.ID)
	assert.NotNil(t, v.ModifiedTime)
	assert.Equal(t, "Doc", v.Scheme.Name())

	// An id without the suffix still resolves and is echoed back.
	bare := ident.Encode("F/Doc")
	v, err = s.Open(ctx, bare)
	require.NoError(t, err)
	assert.Equal(t, bare, v.ID)
	assert.Equal(t, "F", v.FolderPath)
	assert.Equal(t, doc.ID(), v.Scheme.ID())
}

func TestRenameDocument(t *testing.T) {
	s := newTestStore(t)
	mkdir(t, s, "F")
	doc, err := s.Write(ctx, "F", Document{"name": "Old"})
	require.NoError(t, err)

	res, err := s.Rename(ctx, doc.ID(), "New")
	require.NoError(t, err)
	assert.Equal(t, docID("F/New"), res.ID)

	_, err = s.ReadByID(ctx, doc.ID())
	assert.ErrorIs(t, err, ErrDocumentNotFound, "old id is dead")

	renamed, err := s.ReadByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", renamed.Name())

	// A suffixed name is not doubled.
	res, err = s.Rename(ctx, res.ID, "Newer.schemio.json")
	require.NoError(t, err)
	assert.Equal(t, docID("F/Newer"), res.ID)
}

func TestRenameDirectoryThroughRename(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Dir/A.schemio.json", "{}")

	res, err := s.Rename(ctx, ident.Encode("Dir"), "Renamed")
	require.NoError(t, err)
	assert.Equal(t, ident.Encode("Renamed"), res.ID)
	assert.True(t, pathExists(s, "Renamed/A.schemio.json"))
}

func TestRenameErrors(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "A.schemio.json", "{}")
	mkfile(t, s, "B.schemio.json", "{}")

	_, err := s.Rename(ctx, docID("Missing"), "X")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = s.Rename(ctx, docID("A"), "")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Rename(ctx, docID("A"), "a/b")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Rename(ctx, docID("A"), "C ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Rename(ctx, docID("A"), "B")
	assert.ErrorIs(t, err, ErrRenameFailed)
	assert.True(t, pathExists(s, "A.schemio.json"))

	_, err = s.Rename(ctx, "", "X")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "A.schemio.json", "{}")
	mkdir(t, s, "Dir")

	out, err := s.Delete(ctx, "A.schemio.json")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.False(t, pathExists(s, "A.schemio.json"))

	out, err = s.Delete(ctx, "A.schemio.json")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusError, Message: "Invalid path"}, out)

	out, err = s.Delete(ctx, "Dir")
	require.NoError(t, err)
	assert.Equal(t, StatusError, out.Status)
	assert.True(t, pathExists(s, "Dir"))

	_, err = s.Delete(ctx, "../x")
	assert.ErrorIs(t, err, ErrPathEscapesRoot)
}

func TestScenarioWriteListRead(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Write(ctx, "", Document{"name": "A"})
	require.NoError(t, err)
	assert.True(t, pathExists(s, "A.schemio.json"))

	l, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, KindDoc, l.Entries[0].Kind)
	assert.Equal(t, "A", l.Entries[0].Name)

	doc, err := s.ReadByID(ctx, l.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Name())
}
