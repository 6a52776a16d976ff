package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/axenox/Sketch/internal/ident"
)

// Call is a normalized API request. Command is the path below the fs API
// prefix, e.g. "/list/Folder" or "/docs/<id>".
type Call struct {
	Command string
	Method  string
	Body    map[string]any
	Params  map[string]string
}

// field returns the first non-empty string found under keys, looking in the
// body before the query parameters.
func (c Call) field(keys ...string) string {
	for _, k := range keys {
		if v, ok := c.Body[k].(string); ok && v != "" {
			return v
		}
	}
	for _, k := range keys {
		if v := c.Params[k]; v != "" {
			return v
		}
	}
	return ""
}

// has reports whether any of keys is present in the body or the parameters,
// even with an empty value.
func (c Call) has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := c.Body[k]; ok {
			return true
		}
		if _, ok := c.Params[k]; ok {
			return true
		}
	}
	return false
}

// targetID returns the id named by the call, falling back to a path that is
// encoded on the fly.
func (c Call) targetID() (string, bool) {
	if id := c.field("id"); id != "" {
		return id, true
	}
	if p := c.field("path"); p != "" {
		return ident.Encode(p), true
	}
	return "", false
}

// Process runs one normalized call against the store and returns the value
// to serialize.
func (s *Store) Process(ctx context.Context, call Call) (any, error) {
	cmd := "/" + strings.Trim(call.Command, "/")
	method := strings.ToUpper(call.Method)

	switch {
	case cmd == "/list":
		if method != http.MethodGet {
			return nil, methodNotAllowed(method, cmd)
		}
		return s.List(ctx, "")

	case strings.HasPrefix(cmd, "/list/"):
		if method != http.MethodGet {
			return nil, methodNotAllowed(method, cmd)
		}
		return s.List(ctx, strings.TrimPrefix(cmd, "/list/"))

	case cmd == "/dir":
		return s.processDir(ctx, method, call)

	case cmd == "/docs":
		return s.processDocs(ctx, method, call)

	case strings.HasPrefix(cmd, "/docs/"):
		return s.processDoc(ctx, method, strings.TrimPrefix(cmd, "/docs/"), call)

	case cmd == "/movedir":
		if method != http.MethodPost {
			return nil, methodNotAllowed(method, cmd)
		}
		src, dst, err := moveArgs(call)
		if err != nil {
			return nil, err
		}
		return s.MoveSubtree(ctx, src, dst)

	case cmd == "/movescheme":
		if method != http.MethodPost {
			return nil, methodNotAllowed(method, cmd)
		}
		src, dst, err := moveArgs(call)
		if err != nil {
			return nil, err
		}
		return s.MoveSingleFile(ctx, src, dst)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

func (s *Store) processDir(ctx context.Context, method string, call Call) (any, error) {
	switch method {
	case http.MethodPost:
		name := call.field("name")
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
		}
		return s.CreateDirectory(ctx, call.field("path"), name)

	case http.MethodDelete:
		id, ok := call.targetID()
		if !ok {
			return nil, fmt.Errorf("%w: id or path is required", ErrBadRequest)
		}
		return s.DeleteSubtree(ctx, id, false)

	case http.MethodPatch:
		id, ok := call.targetID()
		if !ok {
			return nil, fmt.Errorf("%w: id or path is required", ErrBadRequest)
		}
		if !call.has("name") {
			return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
		}
		return s.RenameDirectory(ctx, id, call.field("name"))
	}
	return nil, methodNotAllowed(method, "/dir")
}

func (s *Store) processDocs(ctx context.Context, method string, call Call) (any, error) {
	switch method {
	case http.MethodPost:
		return s.Write(ctx, call.Params["path"], Document(call.Body))
	case http.MethodPut:
		return s.Write(ctx, "", Document(call.Body))
	case http.MethodGet:
		return s.ListAll(ctx, call.Params["pattern"], call.Params["q"])
	}
	return nil, methodNotAllowed(method, "/docs")
}

func (s *Store) processDoc(ctx context.Context, method, id string, call Call) (any, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrBadRequest)
	}
	switch method {
	case http.MethodGet:
		return s.Open(ctx, id)
	case http.MethodPost, http.MethodPut:
		return s.WriteByID(ctx, id, Document(call.Body))
	case http.MethodPatch:
		if !call.has("name") {
			return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
		}
		return s.Rename(ctx, id, call.field("name"))
	case http.MethodDelete:
		logical, err := ident.Decode(id)
		if err != nil {
			return nil, err
		}
		return s.Delete(ctx, logical)
	}
	return nil, methodNotAllowed(method, "/docs/{id}")
}

// moveArgs extracts the source id and destination parent of a move. The
// destination may be empty (the root) but must be present.
func moveArgs(call Call) (src, dst string, err error) {
	src = call.field("src", "id")
	if src == "" {
		return "", "", fmt.Errorf("%w: src is required", ErrBadRequest)
	}
	if !call.has("dst", "parent") {
		return "", "", fmt.Errorf("%w: dst is required", ErrBadRequest)
	}
	return src, call.field("dst", "parent"), nil
}

func methodNotAllowed(method, cmd string) error {
	return fmt.Errorf("%w: %s %s", ErrMethodNotAllowed, method, cmd)
}
