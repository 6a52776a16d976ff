package store

import (
	"errors"

	"github.com/axenox/Sketch/internal/ident"
)

var (
	ErrMalformedIdentifier    = ident.ErrMalformedIdentifier
	ErrPathEscapesRoot        = errors.New("path escapes store root")
	ErrNotADirectory          = errors.New("not a directory")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrDocumentUnreadable     = errors.New("document unreadable")
	ErrSourceNotFound         = errors.New("source not found")
	ErrInvalidName            = errors.New("invalid name")
	ErrRenameFailed           = errors.New("rename failed")
	ErrMoveFailed             = errors.New("move failed")
	ErrCreateDirectoryFailed  = errors.New("failed to create directory")
	ErrDirectoryAlreadyExists = errors.New("directory already exists")

	// Dispatcher errors.
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrBadRequest       = errors.New("bad request")
)
