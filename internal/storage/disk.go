package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// diskBackend implements Backend on a local directory with one
// subdirectory per category. Used for on-host backup targets and in
// tests.
type diskBackend struct {
	root string
}

// NewDisk creates a local-disk backend rooted at dir.
func NewDisk(dir string) (Backend, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", dir)
	}
	return &diskBackend{root: dir}, nil
}

// Download returns a reader over the stored artifact bytes.
func (b *diskBackend) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	for _, category := range Categories {
		f, err := os.Open(filepath.Join(b.root, category, filename))
		if err == nil {
			return f, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return nil, fmt.Errorf("failed to open artifact %s: %w", filename, err)
	}
	return nil, ErrObjectNotFound
}

// List returns the artifact catalogue for one category.
func (b *diskBackend) List(ctx context.Context, category string) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(filepath.Join(b.root, category))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read category %s: %w", category, err)
	}

	var objects []ObjectInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		objects = append(objects, ObjectInfo{
			Filename: entry.Name(),
			Size:     info.Size(),
		})
	}
	return objects, nil
}
