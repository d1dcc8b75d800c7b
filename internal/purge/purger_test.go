package purge

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
	"github.com/jarrod-lowe/exam-seed/internal/dynamotest"
)

// mockDynamoDBClient is a test double for DynamoDB operations.
type mockDynamoDBClient struct {
	queryFunc      func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	deleteItemFunc func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

func (m *mockDynamoDBClient) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFunc != nil {
		return m.deleteItemFunc(ctx, input, opts...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func keyItem(pk, sk string) map[string]types.AttributeValue {
	return dynamo.Key{PK: pk, SK: sk}.AttributeValues()
}

func seedExam(tbl *dynamotest.Table, examID string, sks ...string) {
	for _, sk := range sks {
		tbl.Seed(keyItem(dynamo.ExamPK(examID), sk))
	}
}

func TestPurger_DeletesWholePartition(t *testing.T) {
	tbl := dynamotest.NewTable()
	seedExam(tbl, "a", "METADATA", "QUESTION#0001", "QUESTION#0002", "QUESTION#0003")

	res, err := NewPurger(tbl, "exam-table").Purge(context.Background(), "a")
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if len(res.Deleted) != 4 {
		t.Errorf("Deleted = %d keys, want 4", len(res.Deleted))
	}
	if got := tbl.SortKeys("EXAM#a"); len(got) != 0 {
		t.Errorf("remaining SKs = %v, want none", got)
	}
}

func TestPurger_PartitionIsolation(t *testing.T) {
	tbl := dynamotest.NewTable()
	seedExam(tbl, "a", "METADATA", "QUESTION#0001")
	seedExam(tbl, "ab", "METADATA", "QUESTION#0001")
	seedExam(tbl, "b", "METADATA", "QUESTION#0001", "QUESTION#0002")

	if _, err := NewPurger(tbl, "exam-table").Purge(context.Background(), "a"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}

	if got := tbl.SortKeys("EXAM#ab"); len(got) != 2 {
		t.Errorf("EXAM#ab SKs = %v, want 2 untouched records", got)
	}
	if got := tbl.SortKeys("EXAM#b"); len(got) != 3 {
		t.Errorf("EXAM#b SKs = %v, want 3 untouched records", got)
	}
}

func TestPurger_EmptyPartitionIsNoOp(t *testing.T) {
	tbl := dynamotest.NewTable()
	seedExam(tbl, "other", "METADATA")

	res, err := NewPurger(tbl, "exam-table").Purge(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if len(res.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none", res.Deleted)
	}
	if !reflect.DeepEqual(tbl.Calls, []string{"Query EXAM#missing"}) {
		t.Errorf("Calls = %v, want a single query", tbl.Calls)
	}
}

func TestPurger_PagesThroughLargePartition(t *testing.T) {
	tbl := dynamotest.NewTable()
	seedExam(tbl, "a", "METADATA", "QUESTION#0001", "QUESTION#0002", "QUESTION#0003", "QUESTION#0004")

	res, err := NewPurger(tbl, "exam-table", WithPageSize(2)).Purge(context.Background(), "a")
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if len(res.Deleted) != 5 {
		t.Errorf("Deleted = %d keys, want 5", len(res.Deleted))
	}
	queries := 0
	for _, c := range tbl.Calls {
		if c == "Query EXAM#a" {
			queries++
		}
	}
	if queries != 3 {
		t.Errorf("issued %d queries, want 3", queries)
	}
}

func TestPurger_QueryUsesPartitionKeyOnly(t *testing.T) {
	var captured *dynamodb.QueryInput
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			captured = input
			return &dynamodb.QueryOutput{}, nil
		},
	}

	if _, err := NewPurger(mock, "exam-table").Purge(context.Background(), "a"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}

	if *captured.TableName != "exam-table" {
		t.Errorf("TableName = %q, want exam-table", *captured.TableName)
	}
	if captured.IndexName != nil {
		t.Errorf("IndexName = %q, want base table", *captured.IndexName)
	}
	if captured.FilterExpression != nil {
		t.Errorf("FilterExpression = %q, want none", *captured.FilterExpression)
	}
	if len(captured.ExpressionAttributeValues) != 1 {
		t.Fatalf("ExpressionAttributeValues = %v, want one value", captured.ExpressionAttributeValues)
	}
	for _, v := range captured.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); !ok || s.Value != "EXAM#a" {
			t.Errorf("key condition value = %v, want EXAM#a", v)
		}
	}
}

func TestPurger_QueryFailureDeletesNothing(t *testing.T) {
	queryErr := errors.New("access denied")
	deleted := false
	mock := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return nil, queryErr
		},
		deleteItemFunc: func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			deleted = true
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}

	res, err := NewPurger(mock, "exam-table").Purge(context.Background(), "a")

	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("Purge() error = %v, want *ScanError", err)
	}
	if scanErr.Page != 1 {
		t.Errorf("Page = %d, want 1", scanErr.Page)
	}
	if !errors.Is(err, queryErr) {
		t.Error("error should wrap the query error")
	}
	if deleted {
		t.Error("DeleteItem should not be called when the query fails")
	}
	if len(res.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none", res.Deleted)
	}
}

func TestPurger_DeleteFailureReportsKeyAndProgress(t *testing.T) {
	tbl := dynamotest.NewTable()
	seedExam(tbl, "a", "METADATA", "QUESTION#0001", "QUESTION#0002")
	deleteErr := errors.New("throttled")
	tbl.DeleteErr = func(key dynamo.Key) error {
		if key.SK == "QUESTION#0001" {
			return deleteErr
		}
		return nil
	}

	res, err := NewPurger(tbl, "exam-table").Purge(context.Background(), "a")

	var delErr *DeleteError
	if !errors.As(err, &delErr) {
		t.Fatalf("Purge() error = %v, want *DeleteError", err)
	}
	want := dynamo.Key{PK: "EXAM#a", SK: "QUESTION#0001"}
	if delErr.Key != want {
		t.Errorf("DeleteError.Key = %+v, want %+v", delErr.Key, want)
	}
	if !reflect.DeepEqual(res.Deleted, []dynamo.Key{{PK: "EXAM#a", SK: "METADATA"}}) {
		t.Errorf("Deleted = %v, want only METADATA", res.Deleted)
	}
	if got := tbl.SortKeys("EXAM#a"); !reflect.DeepEqual(got, []string{"QUESTION#0001", "QUESTION#0002"}) {
		t.Errorf("remaining SKs = %v, want partial purge", got)
	}
}

func TestPurger_MissingExamID(t *testing.T) {
	_, err := NewPurger(&mockDynamoDBClient{}, "exam-table").Purge(context.Background(), "")
	if !errors.Is(err, ErrMissingExamID) {
		t.Errorf("Purge() error = %v, want %v", err, ErrMissingExamID)
	}
}

func TestPurger_ListKeysDoesNotDelete(t *testing.T) {
	tbl := dynamotest.NewTable()
	seedExam(tbl, "a", "METADATA", "QUESTION#0001")

	keys, err := NewPurger(tbl, "exam-table").ListKeys(context.Background(), "a")
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	want := []dynamo.Key{{PK: "EXAM#a", SK: "METADATA"}, {PK: "EXAM#a", SK: "QUESTION#0001"}}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("ListKeys() = %v, want %v", keys, want)
	}
	if got := tbl.SortKeys("EXAM#a"); len(got) != 2 {
		t.Errorf("ListKeys() modified the table: %v", got)
	}
}

func TestPurger_BuildDeleteItem(t *testing.T) {
	tx := NewPurger(&mockDynamoDBClient{}, "exam-table").BuildDeleteItem(dynamo.Key{PK: "EXAM#a", SK: "QUESTION#0003"})
	if tx.Delete == nil {
		t.Fatal("BuildDeleteItem() returned no Delete action")
	}
	if *tx.Delete.TableName != "exam-table" {
		t.Errorf("TableName = %q, want exam-table", *tx.Delete.TableName)
	}
	key, ok := dynamo.KeyOf(tx.Delete.Key)
	if !ok || key.SK != "QUESTION#0003" {
		t.Errorf("Key = %+v, want QUESTION#0003", key)
	}
}
