// Package dynamotest provides an in-memory single-table DynamoDB fake for tests.
//
// The fake understands the subset of the API this module uses: whole-item
// puts and deletes, partition queries with paging, and transactional writes.
// Queries resolve the partition from the single string value in
// ExpressionAttributeValues, which matches the key conditions built by
// the expression package for "PK = :v".
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
)

// Errors returned for requests the fake cannot serve.
var (
	ErrUnsupported     = errors.New("dynamotest: unsupported request")
	ErrMissingKey      = errors.New("dynamotest: item is missing PK or SK")
	ErrTooManyActions  = errors.New("dynamotest: transaction exceeds 100 actions")
	ErrDuplicateAction = errors.New("dynamotest: transaction touches the same item twice")
)

// Table is an in-memory table keyed by PK and SK. The zero value is not usable;
// create one with NewTable.
type Table struct {
	mu         sync.Mutex
	partitions map[string]map[string]map[string]types.AttributeValue

	// Failure hooks. A non-nil error aborts the call before the store changes.
	QueryErr  func(input *dynamodb.QueryInput) error
	PutErr    func(key dynamo.Key) error
	DeleteErr func(key dynamo.Key) error

	// PageSize caps the items returned per Query page when the request has no Limit.
	PageSize int

	// Calls records every operation in order, e.g. "Query EXAM#a", "Put EXAM#a/METADATA".
	Calls []string
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{partitions: make(map[string]map[string]map[string]types.AttributeValue)}
}

// Seed stores items directly, bypassing hooks and the call log.
func (t *Table) Seed(items ...map[string]types.AttributeValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range items {
		key, ok := dynamo.KeyOf(item)
		if !ok {
			panic(ErrMissingKey)
		}
		t.store(key, item)
	}
}

// SortKeys returns the sort keys stored under pk in ascending order.
func (t *Table) SortKeys(pk string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.partitions[pk]))
}

// Item returns a copy of the stored item, or nil.
func (t *Table) Item(key dynamo.Key) map[string]types.AttributeValue {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.partitions[key.PK][key.SK]
	if !ok {
		return nil
	}
	return maps.Clone(item)
}

// Snapshot returns a copy of every item grouped by partition.
func (t *Table) Snapshot() map[string]map[string]map[string]types.AttributeValue {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]map[string]map[string]types.AttributeValue, len(t.partitions))
	for pk, part := range t.partitions {
		p := make(map[string]map[string]types.AttributeValue, len(part))
		for sk, item := range part {
			p[sk] = maps.Clone(item)
		}
		out[pk] = p
	}
	return out
}

// GetItem implements the DynamoDB GetItem operation.
func (t *Table) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key, ok := dynamo.KeyOf(input.Key)
	if !ok {
		return nil, ErrMissingKey
	}
	return &dynamodb.GetItemOutput{Item: t.Item(key)}, nil
}

// PutItem implements the DynamoDB PutItem operation. Condition expressions are rejected.
func (t *Table) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if input.ConditionExpression != nil {
		return nil, fmt.Errorf("%w: conditional put", ErrUnsupported)
	}
	key, ok := dynamo.KeyOf(input.Item)
	if !ok {
		return nil, ErrMissingKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "Put "+key.PK+"/"+key.SK)
	if t.PutErr != nil {
		if err := t.PutErr(key); err != nil {
			return nil, err
		}
	}
	t.store(key, input.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem implements the DynamoDB DeleteItem operation.
func (t *Table) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key, ok := dynamo.KeyOf(input.Key)
	if !ok {
		return nil, ErrMissingKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "Delete "+key.PK+"/"+key.SK)
	if t.DeleteErr != nil {
		if err := t.DeleteErr(key); err != nil {
			return nil, err
		}
	}
	t.remove(key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// UpdateItem is not supported by the fake.
func (t *Table) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return nil, fmt.Errorf("%w: UpdateItem", ErrUnsupported)
}

// Query implements a partition query in ascending sort key order, with
// Limit, ExclusiveStartKey and LastEvaluatedKey paging.
func (t *Table) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if input.IndexName != nil {
		return nil, fmt.Errorf("%w: index queries", ErrUnsupported)
	}
	pk, err := partitionValue(input)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "Query "+pk)
	if t.QueryErr != nil {
		if err := t.QueryErr(input); err != nil {
			return nil, err
		}
	}

	part := t.partitions[pk]
	sks := slices.Sorted(maps.Keys(part))

	start := 0
	if input.ExclusiveStartKey != nil {
		startKey, ok := dynamo.KeyOf(input.ExclusiveStartKey)
		if !ok {
			return nil, ErrMissingKey
		}
		idx, found := slices.BinarySearch(sks, startKey.SK)
		if found {
			idx++
		}
		start = idx
	}

	limit := t.PageSize
	if input.Limit != nil {
		limit = int(*input.Limit)
	}
	end := len(sks)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks[start:end] {
		out.Items = append(out.Items, maps.Clone(part[sk]))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = out.Count
	if end < len(sks) {
		out.LastEvaluatedKey = dynamo.Key{PK: pk, SK: sks[end-1]}.AttributeValues()
	}
	return out, nil
}

// TransactWriteItems applies puts and deletes all-or-nothing.
func (t *Table) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if len(input.TransactItems) > dynamo.MaxTransactItems {
		return nil, ErrTooManyActions
	}

	type action struct {
		key  dynamo.Key
		item map[string]types.AttributeValue
	}
	actions := make([]action, 0, len(input.TransactItems))
	seen := make(map[dynamo.Key]bool, len(input.TransactItems))

	for _, ti := range input.TransactItems {
		var a action
		switch {
		case ti.Put != nil:
			key, ok := dynamo.KeyOf(ti.Put.Item)
			if !ok {
				return nil, ErrMissingKey
			}
			a = action{key: key, item: ti.Put.Item}
		case ti.Delete != nil:
			key, ok := dynamo.KeyOf(ti.Delete.Key)
			if !ok {
				return nil, ErrMissingKey
			}
			a = action{key: key}
		default:
			return nil, fmt.Errorf("%w: transaction action", ErrUnsupported)
		}
		if seen[a.key] {
			return nil, ErrDuplicateAction
		}
		seen[a.key] = true
		actions = append(actions, a)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, fmt.Sprintf("Transact %d", len(actions)))
	for _, a := range actions {
		hook := t.DeleteErr
		if a.item != nil {
			hook = t.PutErr
		}
		if hook != nil {
			if err := hook(a.key); err != nil {
				return nil, &types.TransactionCanceledException{Message: stringPtr(err.Error())}
			}
		}
	}
	for _, a := range actions {
		if a.item != nil {
			t.store(a.key, a.item)
		} else {
			t.remove(a.key)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (t *Table) store(key dynamo.Key, item map[string]types.AttributeValue) {
	part, ok := t.partitions[key.PK]
	if !ok {
		part = make(map[string]map[string]types.AttributeValue)
		t.partitions[key.PK] = part
	}
	part[key.SK] = maps.Clone(item)
}

func (t *Table) remove(key dynamo.Key) {
	part, ok := t.partitions[key.PK]
	if !ok {
		return
	}
	delete(part, key.SK)
	if len(part) == 0 {
		delete(t.partitions, key.PK)
	}
}

func partitionValue(input *dynamodb.QueryInput) (string, error) {
	var values []string
	for _, v := range input.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			values = append(values, s.Value)
		}
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%w: key condition must have exactly one string value, got %d", ErrUnsupported, len(values))
	}
	return values[0], nil
}

func stringPtr(s string) *string {
	return &s
}
