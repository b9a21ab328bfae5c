package faults

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrSourceUnreadable, "SourceUnreadable"},
		{fmt.Errorf("fetch range: %w", ErrSourceUnreadable), "SourceUnreadable"},
		{ErrRecordTooLarge, "RecordTooLarge"},
		{ErrTooManyBadRows, "TooManyBadRows"},
		{ErrSchemaMismatch, "SchemaMismatch"},
		{ErrWriterFailure, "WriterFailure"},
		{ErrNotReady, "NotReady"},
		{ErrSQLSynthesisInvalid, "SqlSynthesisInvalid"},
		{context.DeadlineExceeded, "Timeout"},
		{fmt.Errorf("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrJobNotFound, http.StatusNotFound},
		{ErrNotReady, http.StatusConflict},
		{ErrSQLSynthesisInvalid, http.StatusUnprocessableEntity},
		{ErrDatasetTooLarge, http.StatusRequestEntityTooLarge},
		{ErrLLMUnavailable, http.StatusServiceUnavailable},
		{ErrWriterFailure, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrNotReady), http.StatusConflict},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
