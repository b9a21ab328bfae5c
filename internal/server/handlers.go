package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/jobstore"
	"github.com/raphaelgruber/parq/internal/queryengine"
	"github.com/raphaelgruber/parq/internal/schema"
	"github.com/raphaelgruber/parq/internal/service"
)

// Accepter accepts a creation request. Satisfied by *service.AcceptService.
type Accepter interface {
	Accept(ctx context.Context, req service.AcceptRequest) (string, error)
}

// Querier answers a question about a job's dataset. Satisfied by
// *queryengine.Service.
type Querier interface {
	Answer(ctx context.Context, jobID, question string) (*queryengine.Answer, error)
}

// JobGetter loads job records.
type JobGetter interface {
	Get(ctx context.Context, jobID string) (*jobstore.Record, error)
}

// ContextUpdater mutates a job's free-text context.
type ContextUpdater interface {
	UpdateContext(ctx context.Context, jobID, contextText string) error
}

// createRequest is the POST /parquet-creation body. The payload array is
// the authoritative column declaration; the schema map is kept for older
// clients and carries no order.
type createRequest struct {
	JobID       string              `json:"job_id"`
	S3Key       string              `json:"s3_key"`
	ContextText string              `json:"context_text"`
	Payload     []schema.ColumnSpec `json:"payload"`
	Schema      map[string]string   `json:"schema"`
}

// CreateHandler serves POST /parquet-creation.
func CreateHandler(accept Accepter, logger *slog.Logger) Handler {
	return WithLogging(logger, "parquet-creation", func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if resp, done := Preflight(req); done {
			return resp, nil
		}

		var body createRequest
		if !DecodeBody(req, &body, logger) {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: "malformed JSON body"}), nil
		}

		specs := body.Payload
		if len(specs) == 0 {
			for col, typ := range body.Schema {
				specs = append(specs, schema.ColumnSpec{Column: col, Type: typ})
			}
		}
		declared, err := schema.FromSpecs(specs)
		if err != nil {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: err.Error()}), nil
		}

		parquetKey, err := accept.Accept(ctx, service.AcceptRequest{
			JobID:       body.JobID,
			S3Key:       body.S3Key,
			ContextText: body.ContextText,
			Schema:      declared,
		})
		if err != nil {
			return RespondError(err), nil
		}

		return Respond(http.StatusOK, map[string]string{"parquet_key": parquetKey}), nil
	})
}

// queryRequest is the POST /generate-parquet-query body.
type queryRequest struct {
	Message    string `json:"message"`
	JobID      string `json:"job_id"`
	ParquetKey string `json:"parquet_key"`
}

// queryResponse is the reply envelope for a query.
type queryResponse struct {
	ResponseMessage string `json:"response_message"`
	Truncated       bool   `json:"truncated,omitempty"`
}

// QueryHandler serves POST /generate-parquet-query.
func QueryHandler(querier Querier, logger *slog.Logger) Handler {
	return WithLogging(logger, "generate-parquet-query", func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if resp, done := Preflight(req); done {
			return resp, nil
		}

		var body queryRequest
		if !DecodeBody(req, &body, logger) {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: "malformed JSON body"}), nil
		}
		if body.JobID == "" || body.Message == "" {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: "job_id and message are required"}), nil
		}

		answer, err := querier.Answer(ctx, body.JobID, body.Message)
		if err != nil {
			// A timed-out query is reported as a partial answer rather
			// than a failure; the client cannot act on a 500 here.
			if errors.Is(err, faults.ErrQueryTimeout) {
				return Respond(http.StatusOK, queryResponse{
					ResponseMessage: "The query did not finish within the time limit. Try a narrower question.",
					Truncated:       true,
				}), nil
			}
			return RespondError(err), nil
		}

		return Respond(http.StatusOK, queryResponse{
			ResponseMessage: answer.Message,
			Truncated:       answer.Truncated,
		}), nil
	})
}

// pollResponse is the reply envelope for a status poll.
type pollResponse struct {
	ParquetComplete bool                    `json:"parquet_complete"`
	Schema          []jobstore.SchemaColumn `json:"schema,omitempty"`
	Context         string                  `json:"context,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// PollHandler serves GET /poll-parquet-status/{job_id}.
func PollHandler(jobs JobGetter, logger *slog.Logger) Handler {
	return WithLogging(logger, "poll-parquet-status", func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if resp, done := Preflight(req); done {
			return resp, nil
		}

		jobID := req.PathParameters["job_id"]
		if jobID == "" {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: "job_id path parameter is required"}), nil
		}

		rec, err := jobs.Get(ctx, jobID)
		if err != nil {
			return RespondError(err), nil
		}

		resp := pollResponse{
			ParquetComplete: rec.State == jobstore.StateSucceeded,
			Context:         rec.Context,
			Error:           rec.Error,
		}
		if resp.ParquetComplete {
			resp.Schema = rec.Schema
		}
		return Respond(http.StatusOK, resp), nil
	})
}

// contextRequest is the POST /update-context body.
type contextRequest struct {
	JobID   string `json:"job_id"`
	Context string `json:"context"`
}

// ContextHandler serves POST /update-context.
func ContextHandler(jobs ContextUpdater, logger *slog.Logger) Handler {
	return WithLogging(logger, "update-context", func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if resp, done := Preflight(req); done {
			return resp, nil
		}

		var body contextRequest
		if !DecodeBody(req, &body, logger) {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: "malformed JSON body"}), nil
		}
		if body.JobID == "" {
			return Respond(http.StatusBadRequest, errorEnvelope{Error: "BadRequest", Message: "job_id is required"}), nil
		}

		if err := jobs.UpdateContext(ctx, body.JobID, body.Context); err != nil {
			return RespondError(err), nil
		}
		return Respond(http.StatusOK, map[string]string{"status": "updated"}), nil
	})
}
