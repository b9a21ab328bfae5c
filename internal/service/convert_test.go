package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/metrics"
	"github.com/raphaelgruber/parq/internal/queue"
	"github.com/raphaelgruber/parq/internal/schema"
)

type fakeStore struct {
	rec        *jobstore.Record
	succeeded  bool
	failedKind string
}

func (f *fakeStore) Get(ctx context.Context, jobID string) (*jobstore.Record, error) {
	if f.rec == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, faults.ErrJobNotFound)
	}
	return f.rec, nil
}

func (f *fakeStore) MarkSucceeded(ctx context.Context, jobID string, final schema.Schema) error {
	f.succeeded = true
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, jobID, errorKind string) error {
	f.failedKind = errorKind
	return nil
}

type fakeSource struct {
	csv    string
	opened bool
}

func (f *fakeSource) Open(ctx context.Context, key string) (io.Reader, error) {
	f.opened = true
	return strings.NewReader(f.csv), nil
}

// bufferUploader drains the pipe into memory, failing on demand.
type bufferUploader struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	key  string
	fail bool
}

func (u *bufferUploader) Upload(ctx context.Context, key string, r io.Reader) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.key = key
	if u.fail {
		// A real multipart upload aborts by draining and discarding.
		io.Copy(io.Discard, r)
		return fmt.Errorf("upload: %w", faults.ErrWriterFailure)
	}
	_, err := io.Copy(&u.buf, r)
	return err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		BadRowPolicy:    config.PolicyCoerceNull,
		MaxBadRows:      10,
		MaxRecordBytes:  1 << 20,
		MaxRowsPerBatch: 1 << 20,
		MaxBatchBytes:   1 << 30,
		ChannelCap:      8,
		InternPoolSize:  100,
	}
}

func testMessage() queue.Message {
	return queue.Message{
		JobID: "job-1",
		S3Key: "csvUpload/job-1.csv",
		Schema: []schema.ColumnSpec{
			{Column: "name", Type: "string"},
			{Column: "qty", Type: "integer"},
		},
	}
}

func TestRunSuccess(t *testing.T) {
	store := &fakeStore{rec: &jobstore.Record{State: jobstore.StatePending}}
	source := &fakeSource{csv: "name,qty\na,1\nb,2\n"}
	uploader := &bufferUploader{}
	svc := NewConvertService(store, source, uploader, testConfig(), testLogger(), metrics.NewCollector())

	if err := svc.Run(context.Background(), testMessage()); err != nil {
		t.Fatal(err)
	}
	if !store.succeeded {
		t.Error("job must be marked succeeded")
	}
	if uploader.key != "parquet/job-1.parquet" {
		t.Errorf("upload key = %q", uploader.key)
	}
	if uploader.buf.Len() == 0 {
		t.Error("no parquet bytes uploaded")
	}
}

func TestRunSucceededJobIsNoOp(t *testing.T) {
	store := &fakeStore{rec: &jobstore.Record{State: jobstore.StateSucceeded}}
	source := &fakeSource{csv: "name,qty\na,1\n"}
	svc := NewConvertService(store, source, &bufferUploader{}, testConfig(), testLogger(), metrics.NewCollector())

	if err := svc.Run(context.Background(), testMessage()); err != nil {
		t.Fatal(err)
	}
	if source.opened {
		t.Error("re-delivered succeeded job must not touch the source")
	}
	if store.succeeded {
		t.Error("record must not be rewritten")
	}
}

func TestRunDataFaultMarksFailed(t *testing.T) {
	cfg := testConfig()
	cfg.BadRowPolicy = config.PolicyStrict
	cfg.MaxBadRows = 0

	store := &fakeStore{rec: &jobstore.Record{State: jobstore.StatePending}}
	source := &fakeSource{csv: "name,qty\na,1\nbroken\n"}
	svc := NewConvertService(store, source, &bufferUploader{}, cfg, testLogger(), metrics.NewCollector())

	// Data faults resolve the job; the message must not be re-driven.
	if err := svc.Run(context.Background(), testMessage()); err != nil {
		t.Fatal(err)
	}
	if store.failedKind != "TooManyBadRows" {
		t.Errorf("failed kind = %q", store.failedKind)
	}
	if store.succeeded {
		t.Error("job must not be marked succeeded")
	}
}

func TestRunUploadFailure(t *testing.T) {
	store := &fakeStore{rec: &jobstore.Record{State: jobstore.StatePending}}
	source := &fakeSource{csv: "name,qty\na,1\n"}
	uploader := &bufferUploader{fail: true}
	svc := NewConvertService(store, source, uploader, testConfig(), testLogger(), metrics.NewCollector())

	err := svc.Run(context.Background(), testMessage())
	if !errors.Is(err, faults.ErrWriterFailure) {
		t.Fatalf("err = %v, want ErrWriterFailure surfaced for re-delivery", err)
	}
	if store.failedKind != "WriterFailure" {
		t.Errorf("failed kind = %q", store.failedKind)
	}
}

func TestRunBadMessageSchema(t *testing.T) {
	store := &fakeStore{rec: &jobstore.Record{State: jobstore.StatePending}}
	svc := NewConvertService(store, &fakeSource{}, &bufferUploader{}, testConfig(), testLogger(), metrics.NewCollector())

	msg := testMessage()
	msg.Schema = []schema.ColumnSpec{{Column: "a", Type: "decimal"}}
	if err := svc.Run(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if store.failedKind != "SchemaMismatch" {
		t.Errorf("failed kind = %q", store.failedKind)
	}
}

type fakeCreator struct {
	created bool
}

func (f *fakeCreator) Create(ctx context.Context, jobID, s3Key, contextText string, declared schema.Schema) error {
	f.created = true
	return nil
}

type fakeEnqueuer struct {
	msg queue.Message
}

func (f *fakeEnqueuer) Send(ctx context.Context, msg queue.Message) error {
	f.msg = msg
	return nil
}

func TestAccept(t *testing.T) {
	creator := &fakeCreator{}
	enqueuer := &fakeEnqueuer{}
	svc := NewAcceptService(creator, enqueuer, testLogger())

	declared, err := schema.FromSpecs([]schema.ColumnSpec{{Column: "a", Type: "integer"}})
	if err != nil {
		t.Fatal(err)
	}

	key, err := svc.Accept(context.Background(), AcceptRequest{
		JobID:       "job-1",
		S3Key:       "csvUpload/job-1.csv",
		ContextText: "sales",
		Schema:      declared,
	})
	if err != nil {
		t.Fatal(err)
	}
	if key != "parquet/job-1.parquet" {
		t.Errorf("key = %q", key)
	}
	if !creator.created {
		t.Error("record not created")
	}
	if enqueuer.msg.JobID != "job-1" || len(enqueuer.msg.Schema) != 1 {
		t.Errorf("message = %+v", enqueuer.msg)
	}

	if _, err := svc.Accept(context.Background(), AcceptRequest{S3Key: "k"}); err == nil {
		t.Error("missing job_id must be rejected")
	}
	if _, err := svc.Accept(context.Background(), AcceptRequest{JobID: "j"}); err == nil {
		t.Error("missing s3_key must be rejected")
	}
}
