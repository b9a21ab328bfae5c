package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/schema"
)

// DynamoAPI is the subset of the DynamoDB client the store uses. Tests
// substitute an in-memory fake.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Store reads and writes job records.
type Store struct {
	api    DynamoAPI
	table  string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a job store for the given table.
func New(api DynamoAPI, table string, logger *slog.Logger) *Store {
	return &Store{api: api, table: table, logger: logger, now: time.Now}
}

func (s *Store) key(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"service":   &types.AttributeValueMemberS{Value: Service},
		"serviceId": &types.AttributeValueMemberS{Value: jobID},
	}
}

// Create writes a fresh pending record. Creation is idempotent on job id: a
// record that already exists is left untouched so a retried accept call
// cannot revert a terminal state.
func (s *Store) Create(ctx context.Context, jobID, s3Key, contextText string, declared schema.Schema) error {
	now := s.now().UTC().Format(time.RFC3339)
	rec := Record{
		Service:    Service,
		ServiceID:  jobID,
		State:      StatePending,
		S3Key:      s3Key,
		ParquetKey: ParquetKeyFor(jobID),
		Schema:     SchemaColumns(declared),
		Context:    contextText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(serviceId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			s.logger.Info("job record already exists, accept is a no-op", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("put job record: %w", err)
	}

	s.logger.Info("job record created", "job_id", jobID, "s3_key", s3Key)
	return nil
}

// Get loads a job record.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, faults.ErrJobNotFound)
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}
	return &rec, nil
}

// MarkSucceeded transitions the record to succeeded with the final schema.
func (s *Store) MarkSucceeded(ctx context.Context, jobID string, final schema.Schema) error {
	cols, err := attributevalue.Marshal(SchemaColumns(final))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.key(jobID),
		UpdateExpression: aws.String("SET #state = :state, #schema = :schema, updatedAt = :now REMOVE #err"),
		ExpressionAttributeNames: map[string]string{
			"#state":  "state",
			"#schema": "schema",
			"#err":    "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state":  &types.AttributeValueMemberS{Value: StateSucceeded},
			":schema": cols,
			":now":    &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}

	s.logger.Info("job succeeded", "job_id", jobID)
	return nil
}

// MarkFailed transitions the record to failed with an error kind. A record
// that already reached succeeded is left alone; terminal success never
// reverts.
func (s *Store) MarkFailed(ctx context.Context, jobID, errorKind string) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(jobID),
		ConditionExpression: aws.String("#state <> :succeeded"),
		UpdateExpression:    aws.String("SET #state = :state, #err = :err, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
			"#err":   "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state":     &types.AttributeValueMemberS{Value: StateFailed},
			":succeeded": &types.AttributeValueMemberS{Value: StateSucceeded},
			":err":       &types.AttributeValueMemberS{Value: errorKind},
			":now":       &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			s.logger.Warn("job already succeeded, failure ignored", "job_id", jobID, "error_kind", errorKind)
			return nil
		}
		return fmt.Errorf("mark job failed: %w", err)
	}

	s.logger.Warn("job failed", "job_id", jobID, "error_kind", errorKind)
	return nil
}

// UpdateContext mutates only the free-text dataset context.
func (s *Store) UpdateContext(ctx context.Context, jobID, contextText string) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(jobID),
		ConditionExpression: aws.String("attribute_exists(serviceId)"),
		UpdateExpression:    aws.String("SET #ctx = :ctx, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#ctx": "context",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ctx": &types.AttributeValueMemberS{Value: contextText},
			":now": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("job %s: %w", jobID, faults.ErrJobNotFound)
		}
		return fmt.Errorf("update job context: %w", err)
	}
	return nil
}

// DeclaredSchema rebuilds a schema.Schema from the persisted columns. All
// persisted columns are included by construction.
func (r *Record) DeclaredSchema() (schema.Schema, error) {
	cols := make([]schema.Column, 0, len(r.Schema))
	for _, c := range r.Schema {
		t, err := schema.ParseType(c.Type)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("persisted schema: %w", err)
		}
		cols = append(cols, schema.Column{Name: c.Column, Type: t, Included: true})
	}
	return schema.Schema{Columns: cols}, nil
}
