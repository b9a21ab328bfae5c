package queryengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/llm"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/prompts"
)

// State names the query request's position in its lifecycle. Any state may
// transition to StateFailed with a typed error.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateRendering State = "rendering"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// JobGetter loads job records. Satisfied by *jobstore.Store.
type JobGetter interface {
	Get(ctx context.Context, jobID string) (*jobstore.Record, error)
}

// BlobFetcher fetches a whole object into a bounded buffer.
type BlobFetcher interface {
	Fetch(ctx context.Context, key string, maxBytes int64) ([]byte, error)
}

// Answer is the final response of one query request.
type Answer struct {
	Message   string
	SQL       string
	Truncated bool
}

// Service answers questions about converted datasets.
type Service struct {
	jobs      JobGetter
	blobs     BlobFetcher
	completer llm.Completer
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Collector
	state     State
}

// NewService wires a query service.
func NewService(jobs JobGetter, blobs BlobFetcher, completer llm.Completer, cfg config.Config, logger *slog.Logger, collector *metrics.Collector) *Service {
	return &Service{
		jobs:      jobs,
		blobs:     blobs,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
		metrics:   collector,
		state:     StateIdle,
	}
}

// State reports the service's current lifecycle position.
func (s *Service) State() State {
	return s.state
}

func (s *Service) fail(err error) error {
	s.state = StateFailed
	return err
}

// Answer runs the full query protocol for one question against one job's
// dataset: load, plan, execute, render.
func (s *Service) Answer(ctx context.Context, jobID, question string) (*Answer, error) {
	s.state = StateLoading
	rec, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, s.fail(err)
	}
	if rec.State != jobstore.StateSucceeded {
		return nil, s.fail(fmt.Errorf("job %s is %s: %w", jobID, rec.State, faults.ErrNotReady))
	}

	data, err := s.blobs.Fetch(ctx, rec.ParquetKey, s.cfg.MaxParquetBytes)
	if err != nil {
		return nil, s.fail(err)
	}

	path, cleanup, err := spool(data, s.cfg.EngineTempDir)
	if err != nil {
		return nil, s.fail(err)
	}
	defer cleanup()

	engine, err := OpenEngine(ctx, EngineOptions{
		Threads:  s.cfg.EngineThreads,
		MemLimit: s.cfg.EngineMemLimit,
		TempDir:  s.cfg.EngineTempDir,
	})
	if err != nil {
		return nil, s.fail(err)
	}
	defer engine.Close()

	if err := engine.AttachParquet(ctx, path); err != nil {
		return nil, s.fail(err)
	}

	answer, err := s.answerAttached(ctx, engine, SchemaText(rec.Schema), rec.Context, question)
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateDone
	s.logger.Info("question answered", "job_id", jobID, "truncated", answer.Truncated)
	return answer, nil
}

// AnswerAttached runs plan→execute→render against an engine the caller has
// already attached. The dev CLI uses it directly on a local file.
func (s *Service) AnswerAttached(ctx context.Context, engine *Engine, schemaText, contextText, question string) (*Answer, error) {
	answer, err := s.answerAttached(ctx, engine, schemaText, contextText, question)
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateDone
	return answer, nil
}

func (s *Service) answerAttached(ctx context.Context, engine *Engine, schemaText, contextText, question string) (*Answer, error) {
	s.state = StatePlanning
	sqlText, err := s.synthesize(ctx, schemaText, contextText, question)
	if err != nil {
		return nil, err
	}

	s.state = StateExecuting
	execStart := time.Now()
	result, err := engine.Execute(ctx, sqlText, s.cfg.QueryTimeout, s.cfg.MaxRowsOut)
	s.metrics.RecordTiming(metrics.OpQueryExecute, time.Since(execStart))
	if err != nil {
		return nil, err
	}

	s.state = StateRendering
	table := FormatTable(result, s.cfg.RenderRowCap)
	renderStart := time.Now()
	message, err := s.completer.Complete(ctx, prompts.RenderSystem,
		prompts.RenderUser(table, question, contextText, result.Truncated))
	s.metrics.RecordTiming(metrics.OpLLMRender, time.Since(renderStart))
	if err != nil {
		return nil, err
	}

	return &Answer{Message: message, SQL: sqlText, Truncated: result.Truncated}, nil
}

// synthesize asks the LLM for a single SELECT, re-prompting with the
// rejection reason until the retry budget runs out.
func (s *Service) synthesize(ctx context.Context, schemaText, contextText, question string) (string, error) {
	rejection := ""
	var lastErr error
	for attempt := 0; attempt <= s.cfg.SQLRetries; attempt++ {
		start := time.Now()
		response, err := s.completer.Complete(ctx, prompts.SQLSynthesisSystem,
			prompts.SQLSynthesisUser(schemaText, contextText, question, rejection))
		s.metrics.RecordTiming(metrics.OpLLMSQL, time.Since(start))
		if err != nil {
			return "", err
		}

		sqlText, err := prompts.AcceptSQL(response)
		if err == nil {
			s.logger.Debug("sql accepted", "attempt", attempt+1, "sql", sqlText)
			return sqlText, nil
		}
		lastErr = err
		rejection = err.Error()
		s.logger.Warn("synthesised sql rejected", "attempt", attempt+1, "reason", rejection)
	}
	return "", fmt.Errorf("after %d attempts: %s: %w", s.cfg.SQLRetries+1, lastErr, faults.ErrSQLSynthesisInvalid)
}

// spool writes the fetched Parquet bytes to a temp file the engine can
// scan, returning the path and a cleanup func.
func spool(data []byte, dir string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "parq-*.parquet")
	if err != nil {
		return "", nil, fmt.Errorf("create temp parquet: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp parquet: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp parquet: %w", err)
	}
	return filepath.Clean(path), cleanup, nil
}
