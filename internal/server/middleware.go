package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// maxBodyLogLen is the maximum length for logged request bodies before
// truncation.
const maxBodyLogLen = 200

// slowRequestThreshold is the duration above which requests are logged at
// WARN level.
const slowRequestThreshold = 5 * time.Second

// Handler is one Lambda HTTP handler.
type Handler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// WithLogging wraps a handler with request logging and timing. Slow
// requests are logged at WARN level; bodies are truncated before logging.
func WithLogging(logger *slog.Logger, name string, next Handler) Handler {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		start := time.Now()

		resp, err := next(ctx, req)

		duration := time.Since(start)
		attrs := []any{
			"handler", name,
			"method", req.HTTPMethod,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		}
		if req.Body != "" {
			attrs = append(attrs, "body", truncate(req.Body, maxBodyLogLen))
		}

		switch {
		case err != nil:
			attrs = append(attrs, "error", err.Error())
			logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold:
			logger.Warn("slow request", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}

		return resp, err
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
