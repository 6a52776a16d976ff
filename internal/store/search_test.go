package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(r *SearchResult) []string {
	out := make([]string, 0, len(r.Results))
	for _, h := range r.Results {
		out = append(out, h.Name)
	}
	return out
}

func TestListAllFindsEveryDocument(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Top.schemio.json", "{}")
	mkfile(t, s, "a/Inner.schemio.json", "{}")
	mkfile(t, s, "a/b/c/Deep.schemio.json", "{}")
	mkfile(t, s, "a/readme.md", "# not a document")

	r, err := s.ListAll(ctx, "", "")
	require.NoError(t, err)

	assert.Equal(t, "page", r.Kind)
	assert.Equal(t, 1, r.Page)
	assert.Equal(t, 1, r.TotalPages)
	assert.Equal(t, 3, r.TotalResults)
	assert.Equal(t, 3, r.ResultsPerPage)
	assert.ElementsMatch(t, []string{"Top", "Inner", "Deep"}, names(r))

	for _, h := range r.Results {
		if h.Name == "Deep" {
			assert.Equal(t, "a/b/c/Deep.schemio.json", h.FSPath)
			assert.Equal(t, docID("a/b/c/Deep"), h.ID)
			assert.Equal(t, "/docs/"+h.ID, h.Link)
			assert.Equal(t, "deep", h.LowerName)
			assert.NotNil(t, h.ModifiedTime)
		}
	}
}

func TestListAllQuery(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "Network Plan.schemio.json", `{"items":[]}`)
	mkfile(t, s, "x/Other.schemio.json", `{"description":"Contains a ROUTER shape"}`)
	mkfile(t, s, "x/Third.schemio.json", `{"description":"nothing"}`)

	tests := []struct {
		query string
		want  []string
	}{
		{"network", []string{"Network Plan"}},
		{"PLAN", []string{"Network Plan"}},
		{"router", []string{"Other"}},
		{"zzz", []string{}},
		{"", []string{"Network Plan", "Other", "Third"}},
	}
	for _, tt := range tests {
		r, err := s.ListAll(ctx, "", tt.query)
		require.NoError(t, err)
		assert.ElementsMatch(t, tt.want, names(r), "query %q", tt.query)
		assert.Equal(t, len(tt.want), r.TotalResults)
	}
}

func TestListAllPattern(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "alpha.schemio.json", "{}")
	mkfile(t, s, "beta.schemio.json", "{}")

	r, err := s.ListAll(ctx, "a*.schemio.json", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names(r))

	_, err = s.ListAll(ctx, "[", "")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestListAllEmptyStore(t *testing.T) {
	s := newTestStore(t)
	r, err := s.ListAll(ctx, "", "anything")
	require.NoError(t, err)
	assert.NotNil(t, r.Results)
	assert.Zero(t, r.TotalResults)
}

func TestWalkPreOrder(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "a/x.txt", "")
	mkfile(t, s, "a/b/y.txt", "")
	mkfile(t, s, "c.txt", "")

	var got []string
	for n, err := range walk(s.Root()) {
		require.NoError(t, err)
		got = append(got, n.rel)
	}
	assert.Equal(t, []string{"a", "a/b", "a/b/y.txt", "a/x.txt", "c.txt"}, got)
}

func TestWalkStopsEarly(t *testing.T) {
	s := newTestStore(t)
	mkfile(t, s, "a.txt", "")
	mkfile(t, s, "b.txt", "")

	count := 0
	for range walk(s.Root()) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}
