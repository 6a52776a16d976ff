package webdav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/store"
)

func init() {
	logging.InitNop()
}

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.New(root)
	require.NoError(t, err)

	h := NewHandler("/webdav", func(_ context.Context, vendor, alias string) (*store.Store, error) {
		if vendor == "acme" && alias == "app" {
			return st, nil
		}
		return nil, errors.New("unknown tenant")
	})
	mux := http.NewServeMux()
	mux.Handle("/webdav/{vendor}/{alias}/", h)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, root
}

func request(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if method == "PROPFIND" {
		req.Header.Set("Depth", "1")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPutAndGet(t *testing.T) {
	srv, root := newServer(t)

	resp := request(t, http.MethodPut, srv.URL+"/webdav/acme/app/A.schemio.json", `{"name":"A"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(root, "A.schemio.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"A"}`, string(data))

	resp = request(t, http.MethodGet, srv.URL+"/webdav/acme/app/A.schemio.json", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPropfindListsRoot(t *testing.T) {
	srv, root := newServer(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "Folder"), 0o755))

	resp := request(t, "PROPFIND", srv.URL+"/webdav/acme/app/", "")
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/webdav/acme/app/Folder/")
}

func TestUnknownTenant(t *testing.T) {
	srv, _ := newServer(t)

	resp := request(t, http.MethodGet, srv.URL+"/webdav/acme/other/A.schemio.json", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
