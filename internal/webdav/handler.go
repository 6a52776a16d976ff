// Package webdav exposes tenant roots over WebDAV.
package webdav

import (
	"context"
	"net/http"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/store"
)

// Resolver returns the store of a tenant.
type Resolver func(ctx context.Context, vendor, alias string) (*store.Store, error)

// Handler serves /{prefix}/{vendor}/{alias}/... from the tenant's root. Lock
// state is kept per tenant for the lifetime of the handler.
type Handler struct {
	prefix  string
	resolve Resolver
	locks   *xsync.Map[string, webdav.LockSystem]
}

// NewHandler creates a WebDAV handler. The route it is mounted on must carry
// the {vendor} and {alias} path values.
func NewHandler(prefix string, resolve Resolver) *Handler {
	return &Handler{
		prefix:  prefix,
		resolve: resolve,
		locks:   xsync.NewMap[string, webdav.LockSystem](),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vendor, alias := r.PathValue("vendor"), r.PathValue("alias")
	st, err := h.resolve(r.Context(), vendor, alias)
	if err != nil {
		logging.WithContext(r.Context()).Debug("webdav tenant rejected",
			zap.String("vendor", vendor),
			zap.String("alias", alias),
			zap.Error(err),
		)
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	tenant := vendor + "/" + alias
	ls, _ := h.locks.LoadOrCompute(tenant, func() (webdav.LockSystem, bool) {
		return webdav.NewMemLS(), false
	})

	dav := &webdav.Handler{
		FileSystem: webdav.Dir(st.Root()),
		LockSystem: ls,
		Prefix:     h.prefix + "/" + tenant,
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logging.WithContext(r.Context()).Debug("webdav request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
			}
		},
	}
	dav.ServeHTTP(w, r)
}
