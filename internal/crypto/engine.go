// Package crypto implements the authenticated encryption layer for
// backup artifacts: AES-256-GCM with a random 16-byte IV per operation
// and a deterministic key derived from a single configured secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Key derivation parameters
	kdfIterations = 100000
	keySize       = 32 // 256 bits
	ivSize        = 16 // 128 bits
	tagSize       = 16 // 128 bits authentication tag

	// kdfSalt is fixed so that the same secret always derives the same
	// key; no per-artifact salt is stored.
	kdfSalt = "kanbu-backup-encryption-salt-v1"

	// EncryptedSuffix marks encrypted artifact filenames.
	EncryptedSuffix = ".enc"
)

// ErrKeyNotConfigured is returned when an operation requires a key but
// no secret is configured.
var ErrKeyNotConfigured = errors.New("crypto: encryption key not configured")

// AuthenticationError indicates that decryption failed authentication:
// wrong key, or tampered ciphertext or tag. Plaintext is never
// returned in this case.
type AuthenticationError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("crypto: authentication failed for %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cipher error.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// EncryptResult describes an encrypted artifact file.
type EncryptResult struct {
	EncryptedPath string
	IVHex         string
	AuthTagHex    string
}

// DecryptResult describes a decrypted artifact file.
type DecryptResult struct {
	DecryptedPath string
}

// Engine performs file-level authenticated encryption. The secret is
// injected at construction so multiple engines with different keys can
// coexist in one process.
type Engine struct {
	secret string
}

// New creates an engine from the configured secret. An empty secret is
// valid and yields a disabled engine; callers consult IsEnabled before
// assuming decryption is possible.
func New(secret string) *Engine {
	return &Engine{secret: secret}
}

// IsEnabled reports whether an encryption secret is configured.
func (e *Engine) IsEnabled() bool {
	return e.secret != ""
}

// DeriveKey derives the 256-bit key from the configured secret. A
// secret that is exactly 64 hex characters is used directly as raw key
// bytes; anything else is run through PBKDF2 with the fixed
// application salt. The derivation is deterministic.
func (e *Engine) DeriveKey() ([]byte, error) {
	if !e.IsEnabled() {
		return nil, ErrKeyNotConfigured
	}

	if len(e.secret) == keySize*2 {
		if key, err := hex.DecodeString(e.secret); err == nil {
			return key, nil
		}
		// Not valid hex, treat as a passphrase
	}

	return pbkdf2.Key([]byte(e.secret), []byte(kdfSalt), kdfIterations, keySize, sha256.New), nil
}

// aead builds the AES-256-GCM cipher for the derived key. GCM is
// configured for the 16-byte IV used by the artifact file layout.
func (e *Engine) aead() (cipher.AEAD, error) {
	key, err := e.DeriveKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

// EncryptFile encrypts the file at plaintextPath and writes the layout
// [IV(16B)][ciphertext][authTag(16B)] to outPath. An empty outPath
// defaults to plaintextPath + ".enc".
func (e *Engine) EncryptFile(plaintextPath, outPath string) (*EncryptResult, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	plaintext, err := os.ReadFile(plaintextPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read plaintext file: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	// Seal appends ciphertext||tag, so prefixing the IV yields the
	// three-part file layout directly.
	sealed := gcm.Seal(iv, iv, plaintext, nil)

	if outPath == "" {
		outPath = plaintextPath + EncryptedSuffix
	}
	if err := os.WriteFile(outPath, sealed, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write encrypted file: %w", err)
	}

	return &EncryptResult{
		EncryptedPath: outPath,
		IVHex:         hex.EncodeToString(iv),
		AuthTagHex:    hex.EncodeToString(sealed[len(sealed)-tagSize:]),
	}, nil
}

// DecryptFile parses the [IV][ciphertext][authTag] layout at
// encryptedPath, verifies the authentication tag and writes the
// plaintext to outPath. An empty outPath defaults to encryptedPath
// with the ".enc" suffix stripped. Tampered input or a wrong key
// returns an *AuthenticationError, never altered plaintext.
func (e *Engine) DecryptFile(encryptedPath, outPath string) (*DecryptResult, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(encryptedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted file: %w", err)
	}

	if len(data) < ivSize+tagSize {
		return nil, fmt.Errorf("encrypted file %s is truncated: %d bytes", encryptedPath, len(data))
	}

	iv := data[:ivSize]
	// GCM.Open expects ciphertext||tag, which is everything after the IV.
	plaintext, err := gcm.Open(nil, iv, data[ivSize:], nil)
	if err != nil {
		return nil, &AuthenticationError{Path: encryptedPath, Err: err}
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(encryptedPath, EncryptedSuffix)
	}
	if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write decrypted file: %w", err)
	}

	return &DecryptResult{DecryptedPath: outPath}, nil
}

// IsEncryptedFile reports whether a stored filename follows the
// encrypted artifact naming convention.
func IsEncryptedFile(filename string) bool {
	return strings.HasSuffix(filename, EncryptedSuffix)
}
