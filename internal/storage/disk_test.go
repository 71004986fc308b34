package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDisk(t *testing.T) (Backend, string) {
	t.Helper()
	root := t.TempDir()
	for _, category := range Categories {
		require.NoError(t, os.MkdirAll(filepath.Join(root, category), 0o755))
	}
	backend, err := NewDisk(root)
	require.NoError(t, err)
	return backend, root
}

func TestDisk_Download(t *testing.T) {
	backend, root := newTestDisk(t)
	content := []byte("backup bytes")
	require.NoError(t, os.WriteFile(filepath.Join(root, CategoryBackups, "db.sql"), content, 0o600))

	r, err := backend.Download(context.Background(), "db.sql")
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDisk_DownloadSecondaryCategory(t *testing.T) {
	backend, root := newTestDisk(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, CategoryArchives, "wiki.tar"), []byte("x"), 0o600))

	r, err := backend.Download(context.Background(), "wiki.tar")
	require.NoError(t, err)
	r.Close()
}

func TestDisk_DownloadNotFound(t *testing.T) {
	backend, _ := newTestDisk(t)

	_, err := backend.Download(context.Background(), "missing.tar")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDisk_List(t *testing.T) {
	backend, root := newTestDisk(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, CategoryBackups, "a.tar"), []byte("aaaa"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, CategoryBackups, "b.tar"), []byte("bb"), 0o600))

	objects, err := backend.List(context.Background(), CategoryBackups)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	sizes := map[string]int64{}
	for _, obj := range objects {
		sizes[obj.Filename] = obj.Size
	}
	assert.Equal(t, int64(4), sizes["a.tar"])
	assert.Equal(t, int64(2), sizes["b.tar"])
}

func TestDisk_ListMissingCategory(t *testing.T) {
	backend, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	objects, err := backend.List(context.Background(), CategoryArchives)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestDisk_RootMustExist(t *testing.T) {
	_, err := NewDisk(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
