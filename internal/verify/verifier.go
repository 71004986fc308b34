// Package verify orchestrates the checksum and encryption engines
// against the storage backend and metadata store to answer whether a
// stored backup artifact is still byte-for-byte recoverable.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kanbu/backup-integrity/internal/audit"
	"github.com/kanbu/backup-integrity/internal/cache"
	"github.com/kanbu/backup-integrity/internal/checksum"
	"github.com/kanbu/backup-integrity/internal/crypto"
	"github.com/kanbu/backup-integrity/internal/metrics"
	"github.com/kanbu/backup-integrity/internal/storage"
	"github.com/kanbu/backup-integrity/internal/store"
)

// Result is the outcome of verifying a single artifact. It is
// constructed fresh per call and never mutated afterward.
type Result struct {
	Filename         string    `json:"filename"`
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	ExpectedChecksum string    `json:"expectedChecksum,omitempty"`
	ActualChecksum   string    `json:"actualChecksum,omitempty"`
	VerifiedAt       time.Time `json:"verifiedAt"`
}

// BatchResult aggregates a verify-all pass.
type BatchResult struct {
	Results []*Result `json:"results"`
	Total   int       `json:"total"`
	Success int       `json:"success"`
	Failed  int       `json:"failed"`
	Skipped int       `json:"skipped"`
}

// Stats partitions all completed artifacts by verification state.
// Total always equals Verified+Failed+Pending+NoChecksum.
type Stats struct {
	Total      int `json:"total"`
	Verified   int `json:"verified"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	NoChecksum int `json:"noChecksum"`
}

// QuickCheckResult is the outcome of a size-only integrity probe.
// ExpectedSize is taken from metadata; ActualSize is meaningful only
// when Exists is true.
type QuickCheckResult struct {
	Exists       bool  `json:"exists"`
	SizeMatch    bool  `json:"sizeMatch"`
	ExpectedSize int64 `json:"expectedSize,omitempty"`
	ActualSize   int64 `json:"actualSize,omitempty"`
}

// Options configures a Verifier beyond its required collaborators.
type Options struct {
	// ScratchDir is where temporary download and decryption files are
	// created. Defaults to os.TempDir().
	ScratchDir string

	// Logger defaults to the standard logrus logger.
	Logger *logrus.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics

	// Trail is optional; nil disables audit recording.
	Trail *audit.Trail

	// Listings is optional; nil makes quick checks hit the backend
	// directly.
	Listings *cache.ListingCache

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Verifier orchestrates backup verification. Batch passes run
// sequentially, one artifact at a time, so scratch disk usage stays
// bounded by a single artifact.
type Verifier struct {
	store   store.Store
	backend storage.Backend

	engineMu sync.RWMutex
	engine   *crypto.Engine

	scratch  string
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	trail    *audit.Trail
	listings *cache.ListingCache
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a Verifier over the given metadata store, storage
// backend and encryption engine.
func New(st store.Store, backend storage.Backend, engine *crypto.Engine, opts Options) *Verifier {
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Verifier{
		store:    st,
		backend:  backend,
		engine:   engine,
		scratch:  opts.ScratchDir,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		trail:    opts.Trail,
		listings: opts.Listings,
		tracer:   otel.Tracer("backup-integrity"),
		now:      opts.Now,
	}
}

// SetEngine swaps the encryption engine, typically after the key file
// is rotated. Each verification snapshots the engine when it starts,
// so an in-flight artifact is never decrypted with a mix of keys.
func (v *Verifier) SetEngine(engine *crypto.Engine) {
	v.engineMu.Lock()
	v.engine = engine
	v.engineMu.Unlock()
}

func (v *Verifier) currentEngine() *crypto.Engine {
	v.engineMu.RLock()
	defer v.engineMu.RUnlock()
	return v.engine
}

// VerifyBackup downloads an artifact, decrypts it when necessary,
// hashes the plaintext and compares it against the stored checksum.
// Every failure mode is captured into the returned Result; the call
// never fails with an error. The attempt timestamp is persisted on
// every terminal branch that has a record; the verified flag only when
// a digest comparison actually happened.
func (v *Verifier) VerifyBackup(ctx context.Context, filename string) *Result {
	start := v.now()
	ctx, span := v.tracer.Start(ctx, "VerifyBackup",
		trace.WithAttributes(attribute.String("backup.filename", filename)))
	defer span.End()

	result := v.verify(ctx, filename)

	span.SetAttributes(attribute.Bool("backup.verified", result.Success))
	duration := v.now().Sub(start)
	if v.metrics != nil {
		outcome := "pass"
		if !result.Success {
			outcome = "fail"
		}
		v.metrics.RecordVerification(outcome, duration)
	}
	if v.trail != nil {
		var trailErr error
		if !result.Success {
			trailErr = fmt.Errorf("%s", result.Message)
		}
		v.trail.Record(audit.EventTypeVerify, filename, result.Success, trailErr, duration)
	}
	return result
}

func (v *Verifier) verify(ctx context.Context, filename string) *Result {
	log := v.logger.WithField("filename", filename)
	engine := v.currentEngine()

	rec, err := v.store.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return v.fail(ctx, nil, filename, ErrRecordNotFound.Error(), "", "")
		}
		log.WithError(err).Error("Failed to load backup record")
		return v.fail(ctx, nil, filename, fmt.Sprintf("failed to load backup record: %v", err), "", "")
	}

	if rec.IsEncrypted != crypto.IsEncryptedFile(filename) {
		log.WithField("encrypted", rec.IsEncrypted).
			Warn("Encryption flag disagrees with filename suffix")
	}

	if rec.Checksum == nil {
		return v.fail(ctx, rec, filename, ErrNoChecksum.Error(), "", "")
	}
	expected := *rec.Checksum
	if !checksum.IsValidDigest(expected) {
		return v.fail(ctx, rec, filename, "stored checksum is malformed", expected, "")
	}

	if rec.IsEncrypted && !engine.IsEnabled() {
		return v.fail(ctx, rec, filename,
			fmt.Sprintf("%s: set BACKUP_ENCRYPTION_KEY to verify encrypted backups", ErrKeyUnavailable),
			expected, "")
	}

	downloadPath, err := v.download(ctx, filename)
	if err != nil {
		readErr := &StorageReadError{Filename: filename, Err: err}
		log.WithError(err).Warn("Failed to download backup artifact")
		return v.fail(ctx, rec, filename, readErr.Error(), expected, "")
	}
	defer v.cleanup(downloadPath)

	contentPath := downloadPath
	if rec.IsEncrypted {
		decStart := v.now()
		decrypted, err := engine.DecryptFile(downloadPath, v.scratchPath(strings.TrimSuffix(filename, crypto.EncryptedSuffix)))
		if v.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "fail"
			}
			v.metrics.RecordDecryption(outcome)
		}
		if v.trail != nil {
			v.trail.Record(audit.EventTypeDecrypt, filename, err == nil, err, v.now().Sub(decStart))
		}
		if err != nil {
			log.WithError(err).Warn("Failed to decrypt backup artifact")
			return v.fail(ctx, rec, filename, fmt.Sprintf("decryption failed: %v", err), expected, "")
		}
		contentPath = decrypted.DecryptedPath
		defer v.cleanup(contentPath)
	}

	actual, err := v.digestFile(contentPath)
	if err != nil {
		log.WithError(err).Error("Failed to hash backup content")
		return v.fail(ctx, rec, filename, fmt.Sprintf("failed to read backup content: %v", err), expected, "")
	}

	now := v.now()
	if !strings.EqualFold(actual, expected) {
		verified := false
		v.persist(ctx, filename, &verified, now)
		log.WithFields(logrus.Fields{
			"expected": expected,
			"actual":   actual,
		}).Warn("Backup checksum mismatch")
		return &Result{
			Filename:         filename,
			Success:          false,
			Message:          "checksum mismatch: backup content differs from recorded digest",
			ExpectedChecksum: expected,
			ActualChecksum:   actual,
			VerifiedAt:       now,
		}
	}

	verified := true
	v.persist(ctx, filename, &verified, now)
	log.Info("Backup verified")
	return &Result{
		Filename:         filename,
		Success:          true,
		Message:          "backup verified",
		ExpectedChecksum: expected,
		ActualChecksum:   actual,
		VerifiedAt:       now,
	}
}

// fail builds a failed Result and, when a record exists, persists the
// attempt timestamp without touching the verified flag.
func (v *Verifier) fail(ctx context.Context, rec *store.Artifact, filename, message, expected, actual string) *Result {
	now := v.now()
	if rec != nil {
		v.persist(ctx, filename, nil, now)
	}
	return &Result{
		Filename:         filename,
		Success:          false,
		Message:          message,
		ExpectedChecksum: expected,
		ActualChecksum:   actual,
		VerifiedAt:       now,
	}
}

// persist writes verification state back, last-writer-wins. A failed
// write must not mask the verification outcome, so it is only logged.
func (v *Verifier) persist(ctx context.Context, filename string, verified *bool, at time.Time) {
	if err := v.store.UpdateVerification(ctx, filename, verified, at); err != nil {
		v.logger.WithError(err).WithField("filename", filename).
			Error("Failed to persist verification state")
	}
}

// download copies the stored artifact into a scratch file with a
// per-invocation unique name. Concurrent verifications of the same
// filename never share scratch paths.
func (v *Verifier) download(ctx context.Context, filename string) (string, error) {
	body, err := v.backend.Download(ctx, filename)
	if err != nil {
		return "", err
	}
	defer body.Close()

	path := v.scratchPath(filename)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		v.cleanup(path)
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		v.cleanup(path)
		return "", fmt.Errorf("failed to flush scratch file: %w", err)
	}
	return path, nil
}

func (v *Verifier) scratchPath(filename string) string {
	return filepath.Join(v.scratch, fmt.Sprintf("verify-%s-%s", uuid.NewString(), filepath.Base(filename)))
}

// cleanup removes a scratch file. Best effort: a failed delete must
// not mask the verification result.
func (v *Verifier) cleanup(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		v.logger.WithError(err).WithField("path", path).Warn("Failed to remove scratch file")
	}
}

// digestFile streams a scratch file through the checksum engine.
func (v *Verifier) digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest, err := checksum.Digest(f)
	if err != nil {
		return "", err
	}
	if v.metrics != nil {
		if info, statErr := f.Stat(); statErr == nil {
			v.metrics.RecordBytesHashed(info.Size())
		}
	}
	return digest, nil
}

// VerifyAllPending verifies every completed artifact that has a stored
// checksum and has never been checked, newest first, one at a time.
// Records missing a filename are skipped and counted. A failure on one
// artifact never stops the batch.
func (v *Verifier) VerifyAllPending(ctx context.Context) (*BatchResult, error) {
	ctx, span := v.tracer.Start(ctx, "VerifyAllPending")
	defer span.End()

	pending, err := v.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending backups: %w", err)
	}

	batch := &BatchResult{Total: len(pending)}
	for _, rec := range pending {
		if rec.Filename == "" {
			batch.Skipped++
			v.logger.Warn("Skipping backup record without filename")
			continue
		}

		result := v.VerifyBackup(ctx, rec.Filename)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.Success++
		} else {
			batch.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("backup.batch.total", batch.Total),
		attribute.Int("backup.batch.failed", batch.Failed),
	)
	if v.metrics != nil {
		v.metrics.RecordBatch(batch.Total)
	}
	v.logger.WithFields(logrus.Fields{
		"total":   batch.Total,
		"success": batch.Success,
		"failed":  batch.Failed,
		"skipped": batch.Skipped,
	}).Info("Pending backup verification pass finished")
	return batch, nil
}

// Stats partitions all completed artifacts by verification state. It
// reads metadata only and performs no hashing or downloads.
func (v *Verifier) Stats(ctx context.Context) (*Stats, error) {
	completed, err := v.store.ListCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed backups: %w", err)
	}

	stats := &Stats{Total: len(completed)}
	for _, rec := range completed {
		switch {
		case rec.Checksum == nil:
			stats.NoChecksum++
		case rec.Verified == nil:
			stats.Pending++
		case *rec.Verified:
			stats.Verified++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

// QuickCheck probes artifact presence and size across the storage
// catalogue without downloading or hashing. It never returns an error;
// internal failures collapse to a negative result and the cause is
// logged, not surfaced.
func (v *Verifier) QuickCheck(ctx context.Context, filename string) *QuickCheckResult {
	ctx, span := v.tracer.Start(ctx, "QuickCheck",
		trace.WithAttributes(attribute.String("backup.filename", filename)))
	defer span.End()
	start := v.now()

	result := v.quickCheck(ctx, filename)

	if v.metrics != nil {
		outcome := "missing"
		switch {
		case result.Exists && result.SizeMatch:
			outcome = "ok"
		case result.Exists:
			outcome = "size_mismatch"
		}
		v.metrics.RecordQuickCheck(outcome)
	}
	if v.trail != nil {
		v.trail.Record(audit.EventTypeQuickCheck, filename, result.Exists && result.SizeMatch, nil, v.now().Sub(start))
	}
	return result
}

func (v *Verifier) quickCheck(ctx context.Context, filename string) *QuickCheckResult {
	log := v.logger.WithField("filename", filename)
	result := &QuickCheckResult{}

	rec, err := v.store.Get(ctx, filename)
	if err != nil {
		if err != store.ErrNotFound {
			log.WithError(err).Warn("Quick check could not load backup record")
		}
		return result
	}
	result.ExpectedSize = rec.FileSize

	for _, category := range storage.Categories {
		objects, err := v.listCategory(ctx, category)
		if err != nil {
			// Backend trouble is indistinguishable from absence in the
			// result; the log entry keeps the two apart operationally.
			log.WithError(err).WithField("category", category).
				Warn("Quick check could not list storage catalogue")
			continue
		}
		for _, obj := range objects {
			if obj.Filename != filename {
				continue
			}
			result.Exists = true
			result.ActualSize = obj.Size
			result.SizeMatch = obj.Size == rec.FileSize
			return result
		}
	}
	return result
}

// listCategory lists a catalogue category, through the TTL cache when
// one is configured.
func (v *Verifier) listCategory(ctx context.Context, category string) ([]storage.ObjectInfo, error) {
	if v.listings != nil {
		if objects, ok := v.listings.Get(category); ok {
			return objects, nil
		}
	}
	objects, err := v.backend.List(ctx, category)
	if err != nil {
		return nil, err
	}
	if v.listings != nil {
		v.listings.Set(category, objects)
	}
	return objects, nil
}
