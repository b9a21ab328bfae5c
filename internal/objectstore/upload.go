package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/raphaelgruber/parq/internal/faults"
)

// uploadPartSize keeps at most a handful of 64 MiB parts in flight, which
// holds the uploader inside its share of the memory envelope.
const (
	uploadPartSize    = 64 * 1024 * 1024
	uploadConcurrency = 4
)

// Uploader streams Parquet bytes into the object store as a multipart
// upload. The SDK's manager aborts the multipart upload when the source
// reader fails, so a broken pipeline never leaves a completed object behind.
type Uploader struct {
	uploader *manager.Uploader
	bucket   string
	logger   *slog.Logger
}

// NewUploader creates an uploader into the given bucket.
func NewUploader(client manager.UploadAPIClient, bucket string, logger *slog.Logger) *Uploader {
	u := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
		u.Concurrency = uploadConcurrency
	})
	return &Uploader{uploader: u, bucket: bucket, logger: logger}
}

// Upload streams r to the given key. It blocks until the upload completes
// or fails.
func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader) error {
	u.logger.Info("starting multipart upload", "bucket", u.bucket, "key", key)

	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w: %w", u.bucket, key, faults.ErrWriterFailure, err)
	}

	u.logger.Info("upload complete", "bucket", u.bucket, "key", key)
	return nil
}

// Fetcher reads whole objects out of one bucket.
type Fetcher struct {
	api    S3API
	bucket string
}

// NewFetcher creates a fetcher over (api, bucket).
func NewFetcher(api S3API, bucket string) *Fetcher {
	return &Fetcher{api: api, bucket: bucket}
}

// Fetch reads the object at key, capped at maxBytes.
func (f *Fetcher) Fetch(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	return Fetch(ctx, f.api, f.bucket, key, maxBytes)
}

// Fetch reads a whole object into memory, rejecting objects larger than
// maxBytes before transferring a byte.
func Fetch(ctx context.Context, api S3API, bucket, key string, maxBytes int64) ([]byte, error) {
	head, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head %s/%s: %w: %w", bucket, key, faults.ErrSourceUnreadable, err)
	}
	if size := aws.ToInt64(head.ContentLength); size > maxBytes {
		return nil, fmt.Errorf("object %s/%s is %d bytes, cap %d: %w", bucket, key, size, maxBytes, faults.ErrDatasetTooLarge)
	}

	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w: %w", bucket, key, faults.ErrSourceUnreadable, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w: %w", bucket, key, faults.ErrSourceUnreadable, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("object %s/%s exceeded cap %d: %w", bucket, key, maxBytes, faults.ErrDatasetTooLarge)
	}
	return data, nil
}
