// Package storage holds asset blobs. Store is the only thing the services see;
// main picks the local filesystem or a MinIO bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/xid"
)

// ErrInvalidPath is returned for object paths that are empty, absolute or
// escape their prefix.
var ErrInvalidPath = errors.New("storage: invalid object path")

// Store is a blob store keyed by slash-separated object paths.
type Store interface {
	// Upload writes size bytes from r to objectPath, replacing any existing blob.
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error
	// Remove deletes the given blobs. Paths that do not exist are not an error.
	Remove(ctx context.Context, objectPaths ...string) error
	// Exists reports whether a blob is stored at objectPath.
	Exists(ctx context.Context, objectPath string) (bool, error)
	// PublicURL returns the URL clients fetch the blob from. It does not check
	// that the blob exists.
	PublicURL(objectPath string) string
}

// ObjectPath returns a fresh "<owner>/<xid><ext>" path. ext includes the dot.
func ObjectPath(owner, ext string) string {
	return owner + "/" + xid.New().String() + ext
}

// CleanPath validates p and returns its canonical form. Stores apply it to
// every path they are given.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}
