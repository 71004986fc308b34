// Package checksum computes and compares content digests for backup
// artifacts. Digests are SHA-256, rendered as lowercase hex, and are
// always computed over plaintext content.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// DigestHexLength is the length of a rendered SHA-256 digest.
const DigestHexLength = 64

// ReadError wraps an I/O failure encountered while consuming the input
// stream. It is a distinct type so callers can tell a failed read apart
// from a digest mismatch.
type ReadError struct {
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("checksum: failed to read input: %v", e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// Digest consumes the reader incrementally and returns the lowercase
// hex SHA-256 digest of its contents. The input is never materialized
// in memory as a whole.
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", &ReadError{Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestBytes returns the lowercase hex SHA-256 digest of a small
// in-memory payload.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify returns true iff the digest of the reader's contents equals
// expected, compared case-insensitively. Read failures propagate as a
// *ReadError, never as a false mismatch.
func Verify(r io.Reader, expected string) (bool, error) {
	actual, err := Digest(r)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}

// IsValidDigest reports whether s is exactly 64 hex characters. Stored
// checksums failing this check are rejected before any hashing work.
func IsValidDigest(s string) bool {
	if len(s) != DigestHexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
