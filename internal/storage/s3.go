package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config holds the S3-compatible backend settings.
type S3Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// s3Backend implements Backend against any S3-compatible object store
// using AWS SDK v2. Artifacts are keyed as "<category>/<filename>".
type s3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3 backend client.
func NewS3(cfg S3Config) (Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &s3Backend{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		bucket: cfg.Bucket,
	}, nil
}

// Download returns a reader over the stored artifact bytes. Artifacts
// are looked up across categories in probe order.
func (b *s3Backend) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	var lastErr error
	for _, category := range Categories {
		key := category + "/" + filename
		result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return result.Body, nil
		}
		if isNoSuchKey(err) {
			lastErr = ErrObjectNotFound
			continue
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", b.bucket, key, err)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrObjectNotFound
}

// List returns the artifact catalogue for one category.
func (b *s3Backend) List(ctx context.Context, category string) ([]ObjectInfo, error) {
	prefix := category + "/"
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", b.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if len(key) <= len(prefix) {
				continue
			}
			objects = append(objects, ObjectInfo{
				Filename: key[len(prefix):],
				Size:     aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// isNoSuchKey reports whether the SDK error is a missing-key response.
func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
