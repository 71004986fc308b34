// Package store holds the backup metadata records consumed and updated
// by the verification engine. The record schema is owned by the backup
// producer; this subsystem only reads artifact identity fields and
// writes back verification state.
package store

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of the backup job that produced an
// artifact. Verification only considers completed artifacts.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when no record exists for a filename.
var ErrNotFound = errors.New("store: artifact record not found")

// Artifact is the metadata record for a single backup file, keyed by
// filename.
type Artifact struct {
	Filename    string     `json:"filename"`
	Category    string     `json:"category"`
	Checksum    *string    `json:"checksum"`   // plaintext digest; nil means "cannot verify"
	IsEncrypted bool       `json:"isEncrypted"`
	FileSize    int64      `json:"fileSize"`   // as stored, post-encryption if encrypted
	Status      Status     `json:"status"`
	Verified    *bool      `json:"verified"`   // nil pending, true passed, false failed
	VerifiedAt  *time.Time `json:"verifiedAt"` // last attempt, regardless of outcome
	CreatedAt   time.Time  `json:"createdAt"`
}

// Store is the metadata store consumed by the verification engine.
type Store interface {
	// Get returns the record for a filename, or ErrNotFound.
	Get(ctx context.Context, filename string) (*Artifact, error)

	// Put creates or replaces a record. Used by backup producers; the
	// verification engine never creates records.
	Put(ctx context.Context, a *Artifact) error

	// ListCompleted returns every artifact with a completed status.
	ListCompleted(ctx context.Context) ([]*Artifact, error)

	// ListPending returns completed artifacts with a stored checksum
	// that have never been verified, newest first.
	ListPending(ctx context.Context) ([]*Artifact, error)

	// UpdateVerification writes the verification outcome back. A nil
	// verified updates only the attempt timestamp.
	UpdateVerification(ctx context.Context, filename string, verified *bool, at time.Time) error

	// Close releases the underlying database.
	Close() error
}
