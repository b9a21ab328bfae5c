// Package service orchestrates the two job stages over their AWS
// collaborators: accepting a job (record + queue message) and running a
// conversion (S3 in, Parquet out, job record updated).
package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/convert"
	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/objectstore"
	"github.com/raphaelgruber/parq/internal/queue"
	"github.com/raphaelgruber/parq/internal/schema"
)

// JobStore is the job-record surface the conversion worker needs.
type JobStore interface {
	Get(ctx context.Context, jobID string) (*jobstore.Record, error)
	MarkSucceeded(ctx context.Context, jobID string, final schema.Schema) error
	MarkFailed(ctx context.Context, jobID, errorKind string) error
}

// SourceOpener produces the byte stream for a source object.
type SourceOpener interface {
	Open(ctx context.Context, key string) (io.Reader, error)
}

// ParquetUploader streams Parquet bytes to the object store.
type ParquetUploader interface {
	Upload(ctx context.Context, key string, r io.Reader) error
}

// ConvertService runs one conversion job end to end.
type ConvertService struct {
	store    JobStore
	source   SourceOpener
	uploader ParquetUploader
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewConvertService wires a conversion worker.
func NewConvertService(store JobStore, source SourceOpener, uploader ParquetUploader, cfg config.Config, logger *slog.Logger, collector *metrics.Collector) *ConvertService {
	return &ConvertService{
		store:    store,
		source:   source,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
	}
}

// Run handles one job message. Delivery is at-least-once: a job whose
// record already reached succeeded is skipped; pending and failed jobs
// start fresh and overwrite the Parquet object. Any pipeline or upload
// error marks the job failed with its error kind. For data faults the
// returned error is nil so the message is not re-driven; WriterFailure and
// Timeout errors are returned so the message is delivered again.
func (s *ConvertService) Run(ctx context.Context, msg queue.Message) error {
	logger := s.logger.With("job_id", msg.JobID)

	rec, err := s.store.Get(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if rec.State == jobstore.StateSucceeded {
		logger.Info("job already succeeded, re-delivery is a no-op")
		return nil
	}

	declared, err := schema.FromSpecs(msg.Schema)
	if err != nil {
		logger.Error("job message schema invalid", "error", err)
		return s.store.MarkFailed(ctx, msg.JobID, faults.Kind(faults.ErrSchemaMismatch))
	}

	if err := s.convert(ctx, msg, declared, logger); err != nil {
		kind := faults.Kind(err)
		logger.Error("conversion failed", "error", err, "error_kind", kind)
		if markErr := s.store.MarkFailed(ctx, msg.JobID, kind); markErr != nil {
			return markErr
		}
		// Transport-level faults are worth another delivery; data faults
		// would fail identically every time.
		if kind == "WriterFailure" || kind == "Timeout" {
			return err
		}
		return nil
	}

	return s.store.MarkSucceeded(ctx, msg.JobID, declared)
}

// convert streams the source CSV through the pipeline into a multipart
// upload. The pipeline writes into one end of a pipe while the uploader
// drains the other; failing either side tears down both and aborts the
// partial upload.
func (s *ConvertService) convert(ctx context.Context, msg queue.Message, declared schema.Schema, logger *slog.Logger) error {
	src, err := s.source.Open(ctx, msg.S3Key)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	pipeline := convert.New(s.cfg, logger, s.metrics)

	uploadDone := make(chan error, 1)
	go func() {
		err := s.uploader.Upload(ctx, jobstore.ParquetKeyFor(msg.JobID), pr)
		// Closing the read side unblocks a producer stuck writing into a
		// dead upload.
		pr.CloseWithError(err)
		uploadDone <- err
	}()

	stats, runErr := pipeline.Run(ctx, src, pw, declared)
	pw.CloseWithError(runErr)
	uploadErr := <-uploadDone

	if runErr != nil {
		return runErr
	}
	if uploadErr != nil {
		return uploadErr
	}

	logger.Info("conversion finished",
		"rows", stats.Rows, "bad_rows", stats.BadRows,
		"batches", stats.Batches, "elapsed", stats.Elapsed)
	return nil
}

// S3Source opens chunked readers over the configured bucket.
type S3Source struct {
	api        objectstore.S3API
	bucket     string
	chunkBytes int
	logger     *slog.Logger
}

// NewS3Source creates a source over (api, bucket).
func NewS3Source(api objectstore.S3API, bucket string, chunkBytes int, logger *slog.Logger) *S3Source {
	return &S3Source{api: api, bucket: bucket, chunkBytes: chunkBytes, logger: logger}
}

// Open returns a windowed reader over the object at key.
func (s *S3Source) Open(ctx context.Context, key string) (io.Reader, error) {
	return objectstore.NewChunkReader(ctx, s.api, s.bucket, key, s.chunkBytes, s.logger)
}
