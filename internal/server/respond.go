// Package server holds the HTTP glue shared by the Lambda handlers:
// response envelopes, CORS headers, error mapping, and request logging.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/raphaelgruber/parq/internal/faults"
)

// corsHeaders is attached to every reply. The upload UI is served from a
// different origin than the API.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Methods": "OPTIONS,POST,GET",
	"Content-Type":                 "application/json",
}

// Respond builds a JSON reply with the CORS headers.
func Respond(status int, body any) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    corsHeaders,
			Body:       `{"error":"internal"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    corsHeaders,
		Body:       string(payload),
	}
}

// errorEnvelope is the typed error reply.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError maps an error to its HTTP status and kind token.
func RespondError(err error) events.APIGatewayProxyResponse {
	return Respond(faults.HTTPStatus(err), errorEnvelope{
		Error:   faults.Kind(err),
		Message: err.Error(),
	})
}

// Preflight short-circuits an OPTIONS request, returning false for
// everything else.
func Preflight(req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, bool) {
	if req.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: corsHeaders}, true
	}
	return events.APIGatewayProxyResponse{}, false
}

// DecodeBody parses a JSON request body into dst.
func DecodeBody(req events.APIGatewayProxyRequest, dst any, logger *slog.Logger) bool {
	if err := json.Unmarshal([]byte(req.Body), dst); err != nil {
		logger.Warn("malformed request body", "error", err)
		return false
	}
	return true
}
