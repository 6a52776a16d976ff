// Package api provides the HTTP server and handlers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/auth"
	"github.com/axenox/Sketch/internal/events"
	"github.com/axenox/Sketch/internal/journal"
	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
	"github.com/axenox/Sketch/internal/protocol"
	"github.com/axenox/Sketch/internal/store"
	davpkg "github.com/axenox/Sketch/internal/webdav"
)

// Options configures optional server features.
type Options struct {
	// APIRoute prefixes every API route, e.g. "/api/schemio".
	APIRoute string
	// MaxBodySize limits request bodies in bytes.
	MaxBodySize int64
	Version     string

	// Auth protects tenant, event and WebDAV routes when non-nil.
	Auth *auth.Auth
	// Journal exposes the journal route when non-nil.
	Journal journal.Journal
	WebDAV  bool
}

// Server is the HTTP server.
type Server struct {
	registry    *Registry
	broadcaster *events.Broadcaster
	auth        *auth.Auth
	journal     journal.Journal
	route       string
	maxBodySize int64
	version     string
	webdav      bool
}

// NewServer creates a new server.
func NewServer(registry *Registry, broadcaster *events.Broadcaster, opts Options) *Server {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 10 << 20
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		registry:    registry,
		broadcaster: broadcaster,
		auth:        opts.Auth,
		journal:     opts.Journal,
		route:       strings.TrimSuffix("/"+strings.Trim(opts.APIRoute, "/"), "/"),
		maxBodySize: opts.MaxBodySize,
		version:     opts.Version,
		webdav:      opts.WebDAV,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle(s.route+"/{vendor}/{alias}/v1/fs/{cmd...}", s.protect(http.HandlerFunc(s.handleFS)))
	if s.broadcaster != nil {
		mux.Handle("GET "+s.route+"/v1/events", s.protect(http.HandlerFunc(s.handleEvents)))
	}
	if s.journal != nil {
		mux.Handle("GET "+s.route+"/{vendor}/{alias}/v1/journal", s.protect(http.HandlerFunc(s.handleJournal)))
	}
	if s.webdav {
		dav := davpkg.NewHandler("/webdav", s.registry.Open)
		mux.Handle("/webdav/{vendor}/{alias}/", s.protect(dav))
	}

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) protect(h http.Handler) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:  "ok",
		Version: s.version,
		Tenants: s.registry.Len(),
	})
}

// ─── Scheme store ───────────────────────────────────────────────────────────

func (s *Server) handleFS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vendor, alias := r.PathValue("vendor"), r.PathValue("alias")

	st, err := s.registry.Open(ctx, vendor, alias)
	if err != nil {
		s.sendStoreError(ctx, w, err)
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	ctx = logging.WithFields(ctx, zap.String("tenant", vendor+"/"+alias))
	result, err := st.Process(ctx, store.Call{
		Command: "/" + r.PathValue("cmd"),
		Method:  r.Method,
		Body:    body,
		Params:  params,
	})
	if err != nil {
		s.sendStoreError(ctx, w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// readBody decodes a JSON object body. An empty body yields an empty map.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return body, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// statusFor maps store and registry errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrMalformedIdentifier),
		errors.Is(err, store.ErrPathEscapesRoot),
		errors.Is(err, store.ErrInvalidName),
		errors.Is(err, store.ErrBadRequest),
		errors.Is(err, ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotADirectory),
		errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrSourceNotFound),
		errors.Is(err, store.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, store.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, store.ErrDirectoryAlreadyExists),
		errors.Is(err, store.ErrRenameFailed):
		return http.StatusConflict
	case errors.Is(err, store.ErrDocumentUnreadable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) sendStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.WithContext(ctx).Error("request failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{
			Error:   http.StatusText(code),
			Code:    code,
			Details: err.Error(),
		})
		return
	}
	s.sendError(w, code, err.Error())
}

// ─── SSE ────────────────────────────────────────────────────────────────────

// handleEvents streams change events. The optional "tenant" query parameter
// ("vendor/alias") narrows the stream; tokens limited to some tenants only
// ever see events of those tenants.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	want := r.URL.Query().Get("tenant")
	claims := auth.GetClaims(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if want != "" && event.Tenant != want {
				continue
			}
			if claims != nil && !claims.AllowsTenant(event.Tenant) {
				continue
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// ─── Journal ────────────────────────────────────────────────────────────────

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	vendor, alias := r.PathValue("vendor"), r.PathValue("alias")
	if !validSegment(vendor) || !validSegment(alias) {
		s.sendError(w, http.StatusBadRequest, ErrInvalidTenant.Error())
		return
	}

	limit := journal.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	tenant := vendor + "/" + alias
	entries, err := s.journal.Recent(r.Context(), tenant, limit)
	if err != nil {
		s.sendStoreError(r.Context(), w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.JournalResponse{
		Tenant:  tenant,
		Entries: entries,
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
