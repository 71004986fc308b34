package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSConfig holds the Google Cloud Storage backend settings.
type GCSConfig struct {
	Bucket string
}

// gcsBackend implements Backend on Google Cloud Storage. Artifacts are
// keyed as "<category>/<filename>", same as the S3 backend.
type gcsBackend struct {
	bucket *gcs.BucketHandle
}

// NewGCS creates a GCS backend client using ambient credentials.
func NewGCS(ctx context.Context, cfg GCSConfig) (Backend, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &gcsBackend{bucket: client.Bucket(cfg.Bucket)}, nil
}

// Download returns a reader over the stored artifact bytes.
func (b *gcsBackend) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	var lastErr error
	for _, category := range Categories {
		r, err := b.bucket.Object(category + "/" + filename).NewReader(ctx)
		if err == nil {
			return r, nil
		}
		if errors.Is(err, gcs.ErrObjectNotExist) {
			lastErr = ErrObjectNotFound
			continue
		}
		return nil, fmt.Errorf("failed to open object %s: %w", filename, err)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrObjectNotFound
}

// List returns the artifact catalogue for one category.
func (b *gcsBackend) List(ctx context.Context, category string) ([]ObjectInfo, error) {
	prefix := category + "/"
	it := b.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		if len(attrs.Name) <= len(prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Filename: attrs.Name[len(prefix):],
			Size:     attrs.Size,
		})
	}
	return objects, nil
}
