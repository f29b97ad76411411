package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	s, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := s.Put(ctx, 7, "Report.PDF", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^uploads/7/[0-9a-f-]{36}\.pdf$`), key)

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeysAreUnique(t *testing.T) {
	s, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	a, err := s.Put(context.Background(), 1, "same.txt", []byte("a"))
	require.NoError(t, err)
	b, err := s.Put(context.Background(), 1, "same.txt", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalBlobStore(filepath.Join(root, "blobs"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o644))

	for _, key := range []string{"", "../secret.txt", "uploads/../../secret.txt", "/etc/passwd", `uploads\..\x`, "uploads//x", "."} {
		_, err := s.Get(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestSafeExt(t *testing.T) {
	assert.Equal(t, ".docx", safeExt("a.DOCX"))
	assert.Equal(t, "", safeExt("noext"))
	assert.Equal(t, "", safeExt("evil.p/hp"))
	assert.Equal(t, "", safeExt("x.tar gz"))
	assert.Equal(t, ".txt", safeExt(`C:\docs\notes.txt`))
}
