package verify

import (
	"errors"
	"fmt"
)

// Sentinel failure causes. Every one of these is captured into a
// Result and reported, never raised past VerifyBackup's boundary.
var (
	// ErrRecordNotFound means no metadata record exists for the filename.
	ErrRecordNotFound = errors.New("verify: backup record not found")

	// ErrNoChecksum means the record has no stored checksum to compare against.
	ErrNoChecksum = errors.New("verify: no checksum stored for backup")

	// ErrKeyUnavailable means the artifact is encrypted but no
	// encryption key is configured.
	ErrKeyUnavailable = errors.New("verify: encryption key unavailable")
)

// StorageReadError wraps a failure to download artifact bytes from the
// storage backend.
type StorageReadError struct {
	Filename string
	Err      error
}

// Error implements the error interface.
func (e *StorageReadError) Error() string {
	return fmt.Sprintf("verify: failed to read %s from storage: %v", e.Filename, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *StorageReadError) Unwrap() error {
	return e.Err
}
