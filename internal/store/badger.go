package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "artifact:"

// Options configures the Badger-backed store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory disables disk persistence. Used by tests.
	InMemory bool

	// Logger silences Badger's internal logging when nil.
	Logger *logrus.Logger
}

// badgerStore implements Store on an embedded BadgerDB.
type badgerStore struct {
	db *badger.DB
}

// Open opens or creates the metadata database.
func Open(opts Options) (Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	return &badgerStore{db: db}, nil
}

func artifactKey(filename string) []byte {
	return []byte(keyPrefix + filename)
}

// Get returns the record for a filename, or ErrNotFound.
func (s *badgerStore) Get(ctx context.Context, filename string) (*Artifact, error) {
	var a *Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(filename))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			a = &Artifact{}
			return json.Unmarshal(val, a)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", filename, err)
	}
	return a, nil
}

// Put creates or replaces a record.
func (s *badgerStore) Put(ctx context.Context, a *Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", a.Filename, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(artifactKey(a.Filename), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", a.Filename, err)
	}
	return nil
}

// ListCompleted returns every artifact with a completed status.
func (s *badgerStore) ListCompleted(ctx context.Context) ([]*Artifact, error) {
	var out []*Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				a := &Artifact{}
				if err := json.Unmarshal(val, a); err != nil {
					return err
				}
				if a.Status == StatusCompleted {
					out = append(out, a)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return out, nil
}

// ListPending returns completed artifacts with a stored checksum that
// have never been verified, newest first.
func (s *badgerStore) ListPending(ctx context.Context) ([]*Artifact, error) {
	completed, err := s.ListCompleted(ctx)
	if err != nil {
		return nil, err
	}

	pending := completed[:0]
	for _, a := range completed {
		if a.Checksum != nil && a.Verified == nil {
			pending = append(pending, a)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending, nil
}

// UpdateVerification writes the verification outcome back. The update
// is last-writer-wins per filename.
func (s *badgerStore) UpdateVerification(ctx context.Context, filename string, verified *bool, at time.Time) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(filename))
		if err != nil {
			return err
		}
		a := &Artifact{}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, a)
		}); err != nil {
			return err
		}

		if verified != nil {
			a.Verified = verified
		}
		a.VerifiedAt = &at

		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return txn.Set(artifactKey(filename), data)
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update verification state for %s: %w", filename, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *badgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts logrus to Badger's logging interface.
type badgerLogger struct {
	l *logrus.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{})   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...interface{}) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...interface{})    { b.l.Debugf(format, args...) }
func (b badgerLogger) Debugf(format string, args ...interface{})   { b.l.Debugf(format, args...) }
