package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyWatcher_RequiresPath(t *testing.T) {
	logger := logrus.New()
	_, err := NewKeyWatcher("", logger, func(string) {})
	assert.Error(t, err)
}

func TestKeyWatcher_PicksUpRotatedKey(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise

	keyPath := filepath.Join(t.TempDir(), "backup.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("initial-secret\n"), 0o600))

	var mu sync.Mutex
	var last string
	watcher, err := NewKeyWatcher(keyPath, logger, func(secret string) {
		mu.Lock()
		defer mu.Unlock()
		last = secret
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(keyPath, []byte("rotated-secret\n"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == "rotated-secret"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestKeyWatcher_StopIsIdempotent(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	keyPath := filepath.Join(t.TempDir(), "backup.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("secret"), 0o600))

	watcher, err := NewKeyWatcher(keyPath, logger, func(string) {})
	require.NoError(t, err)

	watcher.Stop()
	watcher.Stop()
}
