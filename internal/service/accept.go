package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/queue"
	"github.com/raphaelgruber/parq/internal/schema"
)

// JobCreator is the job-record surface the accept handler needs.
type JobCreator interface {
	Create(ctx context.Context, jobID, s3Key, contextText string, declared schema.Schema) error
}

// JobEnqueuer sends the conversion job message.
type JobEnqueuer interface {
	Send(ctx context.Context, msg queue.Message) error
}

// AcceptService creates a pending job record and enqueues the conversion.
type AcceptService struct {
	store  JobCreator
	queue  JobEnqueuer
	logger *slog.Logger
}

// NewAcceptService wires an accept service.
func NewAcceptService(store JobCreator, enqueuer JobEnqueuer, logger *slog.Logger) *AcceptService {
	return &AcceptService{store: store, queue: enqueuer, logger: logger}
}

// AcceptRequest is one validated creation request.
type AcceptRequest struct {
	JobID       string
	S3Key       string
	ContextText string
	Schema      schema.Schema
}

// Accept records the job as pending and enqueues it, returning the
// deterministic Parquet key. Idempotent on job id: the record write is a
// no-op when it already exists, and re-delivered messages are absorbed by
// the worker.
func (s *AcceptService) Accept(ctx context.Context, req AcceptRequest) (string, error) {
	if req.JobID == "" {
		return "", fmt.Errorf("job_id is required")
	}
	if req.S3Key == "" {
		return "", fmt.Errorf("s3_key is required")
	}

	if err := s.store.Create(ctx, req.JobID, req.S3Key, req.ContextText, req.Schema); err != nil {
		return "", err
	}

	msg := queue.Message{JobID: req.JobID, S3Key: req.S3Key, Schema: req.Schema.Specs()}
	if err := s.queue.Send(ctx, msg); err != nil {
		return "", err
	}

	s.logger.Info("job accepted", "job_id", req.JobID, "s3_key", req.S3Key,
		"columns", len(req.Schema.Columns))
	return jobstore.ParquetKeyFor(req.JobID), nil
}
