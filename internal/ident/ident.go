// Package ident encodes logical store paths as opaque, URL-safe identifiers.
//
// An identifier is the unpadded base64url encoding of the normalized path, so
// Decode(Encode(p)) == Normalize(p) for every path and identifiers never need
// URL escaping. The package is pure: it never looks at the filesystem.
package ident

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrMalformedIdentifier is returned by Decode for strings that are not valid
// identifiers.
var ErrMalformedIdentifier = errors.New("malformed identifier")

var encoding = base64.RawURLEncoding

// Encode returns the identifier of a logical path.
func Encode(path string) string {
	return encoding.EncodeToString([]byte(Normalize(path)))
}

// Decode returns the normalized logical path encoded by id.
// Trailing '=' padding is tolerated.
func Decode(id string) (string, error) {
	raw, err := encoding.DecodeString(strings.TrimRight(id, "="))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %q is not UTF-8", ErrMalformedIdentifier, id)
	}
	return Normalize(string(raw)), nil
}

// Normalize returns the canonical form of a logical path: '/' separators,
// no empty or "." segments, no leading or trailing slash. Root is "".
//
// Inner ".." segments are folded into their parent. A ".." that would climb
// above the root is kept, so resolvers can reject the path.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")

	segments := make([]string, 0, strings.Count(path, "/")+1)
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if n := len(segments); n > 0 && segments[n-1] != ".." {
				segments = segments[:n-1]
				continue
			}
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/")
}

// Join joins a parent logical path and a child name.
func Join(parent, name string) string {
	return Normalize(parent + "/" + name)
}

// IsRoot reports whether path denotes the store root.
func IsRoot(path string) bool {
	return Normalize(path) == ""
}
