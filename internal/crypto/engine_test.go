package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestEngine_IsEnabled(t *testing.T) {
	if New("").IsEnabled() {
		t.Error("IsEnabled() = true for empty secret")
	}
	if !New("some-passphrase").IsEnabled() {
		t.Error("IsEnabled() = false for configured secret")
	}
}

func TestEngine_DeriveKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)

	tests := []struct {
		name   string
		secret string
	}{
		{
			name:   "passphrase",
			secret: "correct horse battery staple",
		},
		{
			name:   "raw hex key",
			secret: hexKey,
		},
		{
			name:   "64 chars but not hex",
			secret: strings.Repeat("zz", 32),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := New(tt.secret)
			first, err := engine.DeriveKey()
			if err != nil {
				t.Fatalf("DeriveKey() error: %v", err)
			}
			if len(first) != 32 {
				t.Errorf("DeriveKey() length = %d, want 32", len(first))
			}

			// Same secret always yields the same key
			second, err := engine.DeriveKey()
			if err != nil {
				t.Fatalf("DeriveKey() error: %v", err)
			}
			if !bytes.Equal(first, second) {
				t.Error("DeriveKey() not deterministic")
			}
		})
	}
}

func TestEngine_DeriveKey_HexUsedDirectly(t *testing.T) {
	engine := New("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	key, err := engine.DeriveKey()
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if key[0] != 0x00 || key[1] != 0x11 || key[31] != 0xff {
		t.Errorf("DeriveKey() did not decode hex secret directly: % x", key[:4])
	}
}

func TestEngine_DeriveKey_Disabled(t *testing.T) {
	_, err := New("").DeriveKey()
	if !errors.Is(err, ErrKeyNotConfigured) {
		t.Errorf("DeriveKey() error = %v, want ErrKeyNotConfigured", err)
	}
}

func TestEngine_EncryptDecryptRoundTrip(t *testing.T) {
	engine := New("test-backup-secret")

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "small data",
			data: []byte("Hello, World!"),
		},
		{
			name: "empty data",
			data: []byte{},
		},
		{
			name: "large data",
			data: bytes.Repeat([]byte{0xA5, 0x00, 0xFF}, 64*1024),
		},
		{
			name: "binary data",
			data: []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plainPath := writeTempFile(t, "artifact.tar", tt.data)

			encResult, err := engine.EncryptFile(plainPath, "")
			if err != nil {
				t.Fatalf("EncryptFile() error: %v", err)
			}
			if encResult.EncryptedPath != plainPath+EncryptedSuffix {
				t.Errorf("EncryptFile() path = %s, want %s", encResult.EncryptedPath, plainPath+EncryptedSuffix)
			}
			if len(encResult.IVHex) != 32 {
				t.Errorf("EncryptFile() IV hex length = %d, want 32", len(encResult.IVHex))
			}
			if len(encResult.AuthTagHex) != 32 {
				t.Errorf("EncryptFile() tag hex length = %d, want 32", len(encResult.AuthTagHex))
			}

			// File layout: [IV 16][ciphertext N][tag 16]
			encrypted, err := os.ReadFile(encResult.EncryptedPath)
			if err != nil {
				t.Fatalf("Failed to read encrypted file: %v", err)
			}
			if len(encrypted) != 16+len(tt.data)+16 {
				t.Errorf("Encrypted size = %d, want %d", len(encrypted), 16+len(tt.data)+16)
			}

			if err := os.Remove(plainPath); err != nil {
				t.Fatalf("Failed to remove plaintext: %v", err)
			}

			decResult, err := engine.DecryptFile(encResult.EncryptedPath, "")
			if err != nil {
				t.Fatalf("DecryptFile() error: %v", err)
			}
			if decResult.DecryptedPath != plainPath {
				t.Errorf("DecryptFile() path = %s, want %s", decResult.DecryptedPath, plainPath)
			}

			decrypted, err := os.ReadFile(decResult.DecryptedPath)
			if err != nil {
				t.Fatalf("Failed to read decrypted file: %v", err)
			}
			if !bytes.Equal(decrypted, tt.data) {
				t.Error("Decrypted content differs from original plaintext")
			}
		})
	}
}

func TestEngine_DecryptFile_TamperDetection(t *testing.T) {
	engine := New("test-backup-secret")
	plainPath := writeTempFile(t, "artifact.tar", []byte("a payload long enough to tamper with"))

	encResult, err := engine.EncryptFile(plainPath, "")
	if err != nil {
		t.Fatalf("EncryptFile() error: %v", err)
	}
	original, err := os.ReadFile(encResult.EncryptedPath)
	if err != nil {
		t.Fatalf("Failed to read encrypted file: %v", err)
	}

	tests := []struct {
		name   string
		offset int
	}{
		{
			name:   "flip bit in ciphertext",
			offset: 16,
		},
		{
			name:   "flip bit in middle of ciphertext",
			offset: len(original) / 2,
		},
		{
			name:   "flip bit in auth tag",
			offset: len(original) - 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := make([]byte, len(original))
			copy(tampered, original)
			tampered[tt.offset] ^= 0x01
			tamperedPath := writeTempFile(t, "tampered.tar.enc", tampered)

			_, err := engine.DecryptFile(tamperedPath, "")
			if err == nil {
				t.Fatal("DecryptFile() accepted tampered input")
			}
			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Errorf("DecryptFile() error type = %T, want *AuthenticationError", err)
			}
		})
	}
}

func TestEngine_DecryptFile_WrongKey(t *testing.T) {
	plainPath := writeTempFile(t, "artifact.tar", []byte("secret content"))

	encResult, err := New("key-one").EncryptFile(plainPath, "")
	if err != nil {
		t.Fatalf("EncryptFile() error: %v", err)
	}

	_, err = New("key-two").DecryptFile(encResult.EncryptedPath, "")
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("DecryptFile() with wrong key: error = %v, want *AuthenticationError", err)
	}
}

func TestEngine_DecryptFile_Truncated(t *testing.T) {
	engine := New("test-backup-secret")

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "empty file",
			data: nil,
		},
		{
			name: "shorter than IV plus tag",
			data: bytes.Repeat([]byte{0x01}, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "short.enc", tt.data)
			_, err := engine.DecryptFile(path, "")
			if err == nil {
				t.Fatal("DecryptFile() accepted truncated input")
			}
			var authErr *AuthenticationError
			if errors.As(err, &authErr) {
				t.Error("Truncated input reported as authentication failure instead of layout error")
			}
		})
	}
}

func TestEngine_EncryptFile_FreshIVPerOperation(t *testing.T) {
	engine := New("test-backup-secret")
	plainPath := writeTempFile(t, "artifact.tar", []byte("same plaintext"))

	first, err := engine.EncryptFile(plainPath, plainPath+".one.enc")
	if err != nil {
		t.Fatalf("EncryptFile() error: %v", err)
	}
	second, err := engine.EncryptFile(plainPath, plainPath+".two.enc")
	if err != nil {
		t.Fatalf("EncryptFile() error: %v", err)
	}
	if first.IVHex == second.IVHex {
		t.Error("EncryptFile() reused an IV across operations")
	}
}

func TestEngine_DisabledRefusesFileOperations(t *testing.T) {
	engine := New("")
	path := writeTempFile(t, "artifact.tar", []byte("data"))

	if _, err := engine.EncryptFile(path, ""); !errors.Is(err, ErrKeyNotConfigured) {
		t.Errorf("EncryptFile() error = %v, want ErrKeyNotConfigured", err)
	}
	if _, err := engine.DecryptFile(path+EncryptedSuffix, ""); !errors.Is(err, ErrKeyNotConfigured) {
		t.Errorf("DecryptFile() error = %v, want ErrKeyNotConfigured", err)
	}
}

func TestIsEncryptedFile(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"db-2026-08-30.sql.enc", true},
		{"db-2026-08-30.sql", false},
		{".enc", true},
		{"archive.enc.bak", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsEncryptedFile(tt.filename); got != tt.want {
			t.Errorf("IsEncryptedFile(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}
