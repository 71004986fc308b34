package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// KeyWatcher watches the encryption key file and invokes a callback
// when the secret changes, so long-running processes pick up rotated
// keys without restarting.
type KeyWatcher struct {
	keyFile  string
	onChange func(secret string)
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewKeyWatcher starts watching keyFile. The callback runs on the
// watcher goroutine and receives the trimmed new secret.
func NewKeyWatcher(keyFile string, logger *logrus.Logger, onChange func(secret string)) (*KeyWatcher, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("key file path is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors and secret managers typically
	// replace the file atomically, which drops the watch on the file
	// itself.
	if err := watcher.Add(filepath.Dir(keyFile)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch key file directory: %w", err)
	}

	kw := &KeyWatcher{
		keyFile:  keyFile,
		onChange: onChange,
		logger:   logger,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	go kw.run()
	return kw, nil
}

func (w *KeyWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.keyFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(w.keyFile)
			if err != nil {
				w.logger.WithError(err).Warn("Failed to re-read encryption key file")
				continue
			}
			w.logger.WithField("key_file", w.keyFile).Info("Encryption key file changed, reloading")
			w.onChange(strings.TrimSpace(string(data)))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Key file watcher error")
		}
	}
}

// Stop stops watching and releases the watcher.
func (w *KeyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.watcher.Close()
	<-w.done
}
