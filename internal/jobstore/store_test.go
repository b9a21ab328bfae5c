package jobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/schema"
)

// fakeDynamo keeps items in memory and honours the condition and update
// expressions the store actually issues.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	id, _ := item["serviceId"].(*types.AttributeValueMemberS)
	return id.Value
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := itemKey(params.Item)
	if params.ConditionExpression != nil && strings.Contains(*params.ConditionExpression, "attribute_not_exists") {
		if _, ok := f.items[key]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[itemKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	key := itemKey(params.Key)
	item, exists := f.items[key]

	if params.ConditionExpression != nil {
		cond := *params.ConditionExpression
		switch {
		case strings.Contains(cond, "attribute_exists"):
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case strings.Contains(cond, "<>"):
			if exists {
				state, _ := item["state"].(*types.AttributeValueMemberS)
				succeeded := params.ExpressionAttributeValues[":succeeded"].(*types.AttributeValueMemberS)
				if state != nil && state.Value == succeeded.Value {
					return nil, &types.ConditionalCheckFailedException{}
				}
			}
		}
	}

	if !exists {
		item = map[string]types.AttributeValue{"serviceId": params.Key["serviceId"], "service": params.Key["service"]}
		f.items[key] = item
	}

	// Apply the SET clauses the store issues, by attribute name alias.
	for alias, attr := range params.ExpressionAttributeNames {
		valueKey := ":" + strings.TrimPrefix(alias, "#")
		switch alias {
		case "#state":
			item[attr] = params.ExpressionAttributeValues[":state"]
		case "#schema":
			item[attr] = params.ExpressionAttributeValues[":schema"]
		case "#err":
			if v, ok := params.ExpressionAttributeValues[":err"]; ok {
				item[attr] = v
			} else if strings.Contains(*params.UpdateExpression, "REMOVE #err") {
				delete(item, attr)
			}
		case "#ctx":
			item[attr] = params.ExpressionAttributeValues[":ctx"]
		default:
			if v, ok := params.ExpressionAttributeValues[valueKey]; ok {
				item[attr] = v
			}
		}
	}
	if v, ok := params.ExpressionAttributeValues[":now"]; ok {
		item["updatedAt"] = v
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func testStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fake, "jobs", logger), fake
}

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.FromSpecs([]schema.ColumnSpec{
		{Column: "name", Type: "string"},
		{Column: "qty", Type: "integer"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "job-1", "csvUpload/job-1.csv", "sales data", testSchema(t)); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StatePending {
		t.Errorf("state = %q, want pending", rec.State)
	}
	if rec.ParquetKey != "parquet/job-1.parquet" {
		t.Errorf("parquetKey = %q", rec.ParquetKey)
	}
	if len(rec.Schema) != 2 || rec.Schema[0].Column != "name" || rec.Schema[1].Column != "qty" {
		t.Errorf("schema = %v, declared order lost", rec.Schema)
	}
	if rec.Context != "sales data" {
		t.Errorf("context = %q", rec.Context)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "job-1", "k1", "", testSchema(t)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSucceeded(ctx, "job-1", testSchema(t)); err != nil {
		t.Fatal(err)
	}
	// A retried accept call must not revert the terminal state.
	if err := store.Create(ctx, "job-1", "k1", "", testSchema(t)); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StateSucceeded {
		t.Errorf("state = %q, create reverted a terminal state", rec.State)
	}
}

func TestStateIsMonotonic(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "job-1", "k1", "", testSchema(t)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSucceeded(ctx, "job-1", testSchema(t)); err != nil {
		t.Fatal(err)
	}
	// Failure after success is ignored.
	if err := store.MarkFailed(ctx, "job-1", "WriterFailure"); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StateSucceeded {
		t.Errorf("state = %q, want succeeded", rec.State)
	}
	if rec.Error != "" {
		t.Errorf("error = %q, want empty", rec.Error)
	}
}

func TestFailedJobCanSucceedOnRetry(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "job-1", "k1", "", testSchema(t)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, "job-1", "WriterFailure"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSucceeded(ctx, "job-1", testSchema(t)); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StateSucceeded || rec.Error != "" {
		t.Errorf("rec = %+v, want succeeded with cleared error", rec)
	}
}

func TestGetMissingJob(t *testing.T) {
	store, _ := testStore(t)
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, faults.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateContext(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "job-1", "k1", "old", testSchema(t)); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateContext(ctx, "job-1", "new description"); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Context != "new description" {
		t.Errorf("context = %q", rec.Context)
	}

	if err := store.UpdateContext(ctx, "missing", "x"); !errors.Is(err, faults.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestDeclaredSchemaRoundTrip(t *testing.T) {
	rec := Record{Schema: []SchemaColumn{{Column: "a", Type: "integer"}, {Column: "b", Type: "string"}}}
	s, err := rec.DeclaredSchema()
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Columns) != 2 || s.Columns[0].Name != "a" || !s.Columns[0].Included {
		t.Errorf("schema = %+v", s)
	}

	rec.Schema[0].Type = "bogus"
	if _, err := rec.DeclaredSchema(); err == nil {
		t.Error("bogus persisted type should fail")
	}
}

func TestSchemaColumnsMarshal(t *testing.T) {
	cols := SchemaColumns(testSchema(t))
	av, err := attributevalue.Marshal(cols)
	if err != nil {
		t.Fatal(err)
	}
	list, ok := av.(*types.AttributeValueMemberL)
	if !ok || len(list.Value) != 2 {
		t.Fatalf("marshalled form = %T, want ordered list of 2", av)
	}
}
