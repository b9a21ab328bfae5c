// Package jobstore persists conversion job records in DynamoDB, keyed by
// (service, serviceId).
package jobstore

import (
	"github.com/raphaelgruber/parq/internal/schema"
)

// Service is the partition key shared by all parquet job records.
const Service = "parquet"

// Job states. A record starts pending. Succeeded never reverts; a failed job
// may move to succeeded when a re-delivered message retries it.
const (
	StatePending   = "pending"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// SchemaColumn is one entry of the persisted schema. A list attribute keeps
// the declared column order, which a plain map would lose.
type SchemaColumn struct {
	Column string `dynamodbav:"column" json:"column"`
	Type   string `dynamodbav:"type" json:"type"`
}

// Record represents a single item in the job table.
type Record struct {
	Service    string         `dynamodbav:"service"`
	ServiceID  string         `dynamodbav:"serviceId"`
	State      string         `dynamodbav:"state"`
	S3Key      string         `dynamodbav:"s3Key"`
	ParquetKey string         `dynamodbav:"parquetKey"`
	Schema     []SchemaColumn `dynamodbav:"schema,omitempty"`
	Context    string         `dynamodbav:"context"`
	Error      string         `dynamodbav:"error,omitempty"`
	CreatedAt  string         `dynamodbav:"createdAt"`
	UpdatedAt  string         `dynamodbav:"updatedAt"`
}

// ParquetKeyFor derives the deterministic output key for a job.
func ParquetKeyFor(jobID string) string {
	return "parquet/" + jobID + ".parquet"
}

// SchemaColumns converts the included columns of a declared schema into the
// persisted form, preserving order.
func SchemaColumns(s schema.Schema) []SchemaColumn {
	cols := make([]SchemaColumn, 0, len(s.Columns))
	for _, c := range s.Included() {
		cols = append(cols, SchemaColumn{Column: c.Name, Type: string(c.Type)})
	}
	return cols
}
