// Package faults defines the error taxonomy shared by the conversion and
// query stages. Errors are sentinel values; wrap them with fmt.Errorf("...: %w")
// and match with errors.Is in calling code.
package faults

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrSourceUnreadable indicates an object could not be read: a transient
	// error persisted through the reader's fixed number of attempts, or the
	// error was permanent and not retried. The job fails until re-upload.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrRecordTooLarge indicates a single CSV record exceeded the carry
	// buffer cap while resolving a window boundary.
	ErrRecordTooLarge = errors.New("record too large")

	// ErrTooManyBadRows indicates the malformed-row budget was exhausted.
	ErrTooManyBadRows = errors.New("too many bad rows")

	// ErrSchemaMismatch indicates the CSV header does not line up with the
	// declared schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrWriterFailure indicates the Parquet encode or the upload failed.
	// The partial upload is aborted; re-delivery retries the job.
	ErrWriterFailure = errors.New("writer failure")

	// ErrJobNotFound indicates no job record exists for the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotReady indicates a query arrived before the job record reached
	// the succeeded state. Clients retry via the poll endpoint.
	ErrNotReady = errors.New("dataset not ready")

	// ErrSQLSynthesisInvalid indicates the LLM failed to produce an
	// acceptable SELECT statement within the retry budget.
	ErrSQLSynthesisInvalid = errors.New("sql synthesis invalid")

	// ErrQueryTimeout indicates SQL execution hit the wall-clock cap.
	ErrQueryTimeout = errors.New("query timeout")

	// ErrQueryTooLarge indicates the result exceeded the row cap.
	ErrQueryTooLarge = errors.New("query result too large")

	// ErrDatasetTooLarge indicates the Parquet object exceeded the
	// configured in-memory fetch cap for the query stage.
	ErrDatasetTooLarge = errors.New("dataset too large")

	// ErrLLMUnavailable indicates the completion endpoint could not be
	// reached or returned a transport-level error.
	ErrLLMUnavailable = errors.New("llm unavailable")
)

// Kind returns the stable error-kind token recorded on job records and
// emitted in log events. Unknown errors report as "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSourceUnreadable):
		return "SourceUnreadable"
	case errors.Is(err, ErrRecordTooLarge):
		return "RecordTooLarge"
	case errors.Is(err, ErrTooManyBadRows):
		return "TooManyBadRows"
	case errors.Is(err, ErrSchemaMismatch):
		return "SchemaMismatch"
	case errors.Is(err, ErrWriterFailure):
		return "WriterFailure"
	case errors.Is(err, ErrJobNotFound):
		return "JobNotFound"
	case errors.Is(err, ErrNotReady):
		return "NotReady"
	case errors.Is(err, ErrSQLSynthesisInvalid):
		return "SqlSynthesisInvalid"
	case errors.Is(err, ErrQueryTimeout):
		return "QueryTimeout"
	case errors.Is(err, ErrQueryTooLarge):
		return "QueryTooLarge"
	case errors.Is(err, ErrDatasetTooLarge):
		return "DatasetTooLarge"
	case errors.Is(err, ErrLLMUnavailable):
		return "LLMUnavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Timeout"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code the HTTP surface reports.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, ErrSQLSynthesisInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDatasetTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrLLMUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
