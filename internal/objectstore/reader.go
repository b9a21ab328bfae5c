// Package objectstore provides the S3 access used by both stages: a
// windowed range reader for the conversion input, a multipart uploader for
// the Parquet output, and a bounded whole-object fetch for the query stage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/raphaelgruber/parq/internal/faults"
)

// S3API is the subset of the S3 client the reader uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

const (
	maxFetchAttempts = 4
	initialBackoff   = 250 * time.Millisecond
)

// ChunkReader streams an object as an io.Reader backed by sequential range
// requests of a fixed window size. At most one range is resident at a time
// and at most one request is outstanding, which bounds the reader's memory
// to the window size. Each window is retried with exponential backoff;
// exhausting the attempts surfaces faults.ErrSourceUnreadable.
type ChunkReader struct {
	ctx        context.Context
	api        S3API
	bucket     string
	key        string
	size       int64
	offset     int64 // next byte to fetch from the object
	chunkBytes int64
	window     []byte
	windowPos  int
	logger     *slog.Logger
}

// NewChunkReader opens a windowed reader over (bucket, key). The object
// size is resolved up front with a HEAD request.
func NewChunkReader(ctx context.Context, api S3API, bucket, key string, chunkBytes int, logger *slog.Logger) (*ChunkReader, error) {
	head, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head %s/%s: %w: %w", bucket, key, faults.ErrSourceUnreadable, err)
	}

	return &ChunkReader{
		ctx:        ctx,
		api:        api,
		bucket:     bucket,
		key:        key,
		size:       aws.ToInt64(head.ContentLength),
		chunkBytes: int64(chunkBytes),
		logger:     logger,
	}, nil
}

// Size returns the object's content length.
func (r *ChunkReader) Size() int64 {
	return r.size
}

// Read implements io.Reader. It serves bytes from the resident window and
// fetches the next range when the window is exhausted.
func (r *ChunkReader) Read(p []byte) (int, error) {
	if r.windowPos >= len(r.window) {
		if err := r.fetchNextWindow(); err != nil {
			return 0, err
		}
		if len(r.window) == 0 {
			return 0, io.EOF
		}
	}
	n := copy(p, r.window[r.windowPos:])
	r.windowPos += n
	return n, nil
}

func (r *ChunkReader) fetchNextWindow() error {
	if r.offset >= r.size {
		r.window = nil
		r.windowPos = 0
		return nil
	}

	end := r.offset + r.chunkBytes - 1
	if end >= r.size {
		end = r.size - 1
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", r.offset, end)

	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		body, err := r.fetchRange(rangeHeader)
		if err == nil {
			r.window = body
			r.windowPos = 0
			r.offset = end + 1
			return nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		r.logger.Warn("range fetch failed, retrying",
			"bucket", r.bucket, "key", r.key, "range", rangeHeader,
			"attempt", attempt, "error", err)
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("fetch %s/%s %s: %w: %w", r.bucket, r.key, rangeHeader, faults.ErrSourceUnreadable, lastErr)
}

func (r *ChunkReader) fetchRange(rangeHeader string) ([]byte, error) {
	out, err := r.api.GetObject(r.ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read range body: %w", err)
	}
	return body, nil
}

// retryable reports whether an S3 error is worth another attempt. Missing
// objects and cancelled contexts are permanent; everything else is treated
// as a transient transport fault.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "AccessDenied":
			return false
		}
	}
	return true
}
