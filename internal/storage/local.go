package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// MediaPrefix is the URL path the server serves Local.Root under.
const MediaPrefix = "/media/"

// Local keeps blobs as files under a root directory and serves them from
// BaseURL + MediaPrefix.
type Local struct {
	root    string
	baseURL string
}

var _ Store = (*Local)(nil)

// NewLocal creates root if needed.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", root, err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Local) file(objectPath string) (string, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

// Upload writes to a temporary file first and renames it into place, so a
// failed upload never leaves a partial blob at objectPath.
func (s *Local) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	dst, err := s.file(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: creating directory for %s: %w", objectPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, readerWithContext(ctx, r))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("storage: writing %s: %w", objectPath, err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("storage: writing %s: got %d bytes, want %d", objectPath, n, size)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("storage: committing %s: %w", objectPath, err)
	}
	return nil
}

func (s *Local) Remove(ctx context.Context, objectPaths ...string) error {
	var errs []error
	for _, p := range objectPaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := s.file(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("storage: removing %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Local) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f, err := s.file(objectPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(f)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", objectPath, err)
	}
	return info.Mode().IsRegular(), nil
}

func (s *Local) PublicURL(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + MediaPrefix + strings.Join(segments, "/")
}

// Root is the directory blobs are stored in. The server serves it under
// MediaPrefix.
func (s *Local) Root() string {
	return s.root
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
