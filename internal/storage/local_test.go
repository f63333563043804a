package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)
	return s
}

func TestLocal_UploadExistsRemove(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	p := ObjectPath("user1", ".jpg")

	ok, err := s.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	body := "not really a jpeg"
	require.NoError(t, s.Upload(ctx, p, strings.NewReader(body), int64(len(body)), "image/jpeg"))

	ok, err = s.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(ctx, p))
	ok, err = s.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	// removing again is fine
	assert.NoError(t, s.Remove(ctx, p))
}

func TestLocal_UploadShortReadLeavesNothing(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	err := s.Upload(ctx, "user1/short.png", strings.NewReader("abc"), 10, "image/png")
	require.Error(t, err)

	ok, err := s.Exists(ctx, "user1/short.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_RejectsEscapingPaths(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	for _, p := range []string{"", "/etc/passwd", "../outside", "a/../../b", `a\b`} {
		err := s.Upload(ctx, p, strings.NewReader("x"), 1, "text/plain")
		assert.True(t, errors.Is(err, ErrInvalidPath), "path %q: %v", p, err)
	}
}

func TestLocal_PublicURL(t *testing.T) {
	s := newTestLocal(t)

	assert.Equal(t, "http://localhost:8080/media/user1/abc.jpg", s.PublicURL("user1/abc.jpg"))
	assert.Equal(t, "http://localhost:8080/media/user1/a%20b.jpg", s.PublicURL("user1/a b.jpg"))
}

func TestObjectPath_Unique(t *testing.T) {
	a := ObjectPath("u", ".mp4")
	b := ObjectPath("u", ".mp4")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "u/"))
	assert.True(t, strings.HasSuffix(a, ".mp4"))
}
