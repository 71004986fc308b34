// Package storage abstracts the backend holding backup artifact bytes.
// The verification engine only ever downloads and lists; producing or
// deleting artifacts is out of scope.
package storage

import (
	"context"
	"errors"
	"io"
)

// Artifact categories. Every artifact lives in exactly one category;
// quick checks probe both.
const (
	CategoryBackups  = "backups"
	CategoryArchives = "archives"
)

// Categories lists all artifact categories in probe order.
var Categories = []string{CategoryBackups, CategoryArchives}

// ErrObjectNotFound is returned by Download when the backend has no
// object for the filename.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored artifact as listed by the backend.
type ObjectInfo struct {
	Filename string
	Size     int64
}

// Backend is the read-only storage interface consumed by the
// verification engine.
type Backend interface {
	// Download returns a reader over the stored artifact bytes.
	Download(ctx context.Context, filename string) (io.ReadCloser, error)

	// List returns the artifact catalogue for one category.
	List(ctx context.Context, category string) ([]ObjectInfo, error)
}
