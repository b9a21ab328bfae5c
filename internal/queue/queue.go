// Package queue sends and parses the conversion job messages that travel
// between the accept handler and the conversion worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/raphaelgruber/parq/internal/schema"
)

// Message is the job message delivered to the conversion worker. Delivery
// is at-least-once; the worker treats a re-delivered succeeded job as a
// no-op.
type Message struct {
	JobID  string              `json:"job_id"`
	S3Key  string              `json:"s3_key"`
	Schema []schema.ColumnSpec `json:"schema"`
}

// SQSAPI is the subset of the SQS client the sender uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Sender enqueues job messages.
type Sender struct {
	api      SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewSender creates a sender for the given queue URL.
func NewSender(api SQSAPI, queueURL string, logger *slog.Logger) *Sender {
	return &Sender{api: api, queueURL: queueURL, logger: logger}
}

// Send enqueues one job message.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}

	_, err = s.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send job message: %w", err)
	}

	s.logger.Info("job enqueued", "job_id", msg.JobID, "s3_key", msg.S3Key)
	return nil
}

// Parse decodes a job message body as received from the queue.
func Parse(body string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return Message{}, fmt.Errorf("parse job message: %w", err)
	}
	if msg.JobID == "" || msg.S3Key == "" {
		return Message{}, fmt.Errorf("job message missing job_id or s3_key")
	}
	return msg, nil
}
