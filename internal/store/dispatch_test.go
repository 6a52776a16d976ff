package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axenox/Sketch/internal/ident"
)

func TestProcessRoutes(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "F/Doc.schemio.json", `{"v":1}`)

	tests := []struct {
		name string
		call Call
		want any
	}{
		{"list root", Call{Command: "/list", Method: "GET"}, &Listing{}},
		{"list path", Call{Command: "/list/F", Method: "get"}, &Listing{}},
		{"search", Call{Command: "/docs", Method: "GET", Params: map[string]string{"q": "doc"}}, &SearchResult{}},
		{"open", Call{Command: "/docs/" + docID("F/Doc"), Method: "GET"}, &DocumentView{}},
		{"mkdir", Call{Command: "/dir", Method: "POST", Body: map[string]any{"path": "F", "name": "Sub"}}, &Entry{}},
		{"create doc", Call{Command: "/docs", Method: "POST", Params: map[string]string{"path": "F"}, Body: map[string]any{"name": "New"}}, Document{}},
		{"put doc", Call{Command: "/docs", Method: "PUT", Body: map[string]any{"name": "Root"}}, Document{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Process(ctx, tt.call)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}

	assert.True(t, pathExists(s, "F/Sub"))
	assert.True(t, pathExists(s, "F/New.schemio.json"))
	assert.True(t, pathExists(s, "Root.schemio.json"))
}

func TestProcessListNestedPath(t *testing.T) {
	s := newTestStore(t)
	mkdir(t, s, "a/b")

	got, err := s.Process(ctx, Call{Command: "list/a/b/", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "a/b", got.(*Listing).Path)
}

func TestProcessDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	mkdir(t, s, "F")

	created, err := s.Process(ctx, Call{
		Command: "/docs",
		Method:  "POST",
		Params:  map[string]string{"path": "F"},
		Body:    map[string]any{"name": "Plan", "v": 1},
	})
	require.NoError(t, err)
	id := created.(Document).ID()

	_, err = s.Process(ctx, Call{Command: "/docs/" + id, Method: "PUT", Body: map[string]any{"v": 2}})
	require.NoError(t, err)

	renamed, err := s.Process(ctx, Call{Command: "/docs/" + id, Method: "PATCH", Body: map[string]any{"name": "Renamed"}})
	require.NoError(t, err)
	newID := renamed.(*RenameResult).ID
	assert.Equal(t, docID("F/Renamed"), newID)

	out, err := s.Process(ctx, Call{Command: "/docs/" + newID, Method: "DELETE"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.(Outcome).Status)
	assert.False(t, pathExists(s, "F/Renamed.schemio.json"))
}

func TestProcessDirectoryCommands(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Old/A.schemio.json", `{}`)

	got, err := s.Process(ctx, Call{
		Command: "/dir",
		Method:  "PATCH",
		Body:    map[string]any{"id": ident.Encode("Old"), "name": "New"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New", got.(*DirectoryRename).Path)

	// A plain path is accepted in place of an id.
	got, err = s.Process(ctx, Call{
		Command: "/dir",
		Method:  "DELETE",
		Params:  map[string]string{"path": "New"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.(Outcome).Status)
	assert.False(t, pathExists(s, "New"))

	// Documents are only removed through /docs.
	mkfile(t, s, "A.schemio.json", `{}`)
	got, err = s.Process(ctx, Call{
		Command: "/dir",
		Method:  "DELETE",
		Params:  map[string]string{"path": "A.schemio.json"},
	})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusError, Message: "Invalid path"}, got)
	assert.True(t, pathExists(s, "A.schemio.json"))
}

func TestProcessMoves(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Src/A.schemio.json", `{}`)
	mkfile(t, s, "B.schemio.json", `{}`)

	got, err := s.Process(ctx, Call{
		Command: "/movedir",
		Method:  "POST",
		Body:    map[string]any{"src": ident.Encode("Src"), "dst": "Dest"},
	})
	require.NoError(t, err)
	assert.Len(t, got.(*MoveResult).MovedEntries, 2)

	got, err = s.Process(ctx, Call{
		Command: "/movescheme",
		Method:  "POST",
		Body:    map[string]any{"id": docID("B"), "parent": "Dest"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dest/B.schemio.json", got.(*MoveFileResult).Dst)

	// An empty destination names the root.
	_, err = s.Process(ctx, Call{
		Command: "/movescheme",
		Method:  "POST",
		Body:    map[string]any{"src": docID("Dest/B"), "dst": ""},
	})
	require.NoError(t, err)
	assert.True(t, pathExists(s, "B.schemio.json"))
}

func TestProcessErrors(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		call Call
		want error
	}{
		{"unknown", Call{Command: "/art", Method: "GET"}, ErrUnknownCommand},
		{"empty", Call{Command: "", Method: "GET"}, ErrUnknownCommand},
		{"list method", Call{Command: "/list", Method: "POST"}, ErrMethodNotAllowed},
		{"dir method", Call{Command: "/dir", Method: "GET"}, ErrMethodNotAllowed},
		{"docs method", Call{Command: "/docs", Method: "DELETE"}, ErrMethodNotAllowed},
		{"doc method", Call{Command: "/docs/abc", Method: "HEAD"}, ErrMethodNotAllowed},
		{"movedir method", Call{Command: "/movedir", Method: "GET"}, ErrMethodNotAllowed},
		{"mkdir without name", Call{Command: "/dir", Method: "POST"}, ErrBadRequest},
		{"rmdir without id", Call{Command: "/dir", Method: "DELETE"}, ErrBadRequest},
		{"rename without name", Call{Command: "/docs/abc", Method: "PATCH"}, ErrBadRequest},
		{"move without src", Call{Command: "/movedir", Method: "POST", Body: map[string]any{"dst": "x"}}, ErrBadRequest},
		{"move without dst", Call{Command: "/movescheme", Method: "POST", Body: map[string]any{"src": "eA"}}, ErrBadRequest},
		{"malformed id", Call{Command: "/docs/***", Method: "GET"}, ErrMalformedIdentifier},
		{"missing doc", Call{Command: "/docs/" + docID("nope"), Method: "GET"}, ErrDocumentNotFound},
		{"post without name", Call{Command: "/docs", Method: "POST"}, ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Process(ctx, tt.call)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
