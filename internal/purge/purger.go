// Package purge removes every record stored under an exam's partition.
package purge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
)

// ErrMissingExamID is returned when Purge is called without an exam id.
var ErrMissingExamID = errors.New("exam id is required")

// ScanError reports a failed partition query. Page is the 1-based page that
// failed; a failure on page 1 means nothing was deleted.
type ScanError struct {
	PK   string
	Page int
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("failed to query %s (page %d): %v", e.PK, e.Page, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// DeleteError reports the record a purge stopped at.
type DeleteError struct {
	Key dynamo.Key
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s/%s: %v", e.Key.PK, e.Key.SK, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// DynamoDBClient is the subset of the DynamoDB client used by Purger.
type DynamoDBClient interface {
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Result lists the keys deleted by a purge, in deletion order. It is populated
// even when Purge fails, so callers can see how far it got.
type Result struct {
	ExamID  string
	Deleted []dynamo.Key
}

// Purger deletes all records in an exam partition, one at a time.
type Purger struct {
	client    DynamoDBClient
	tableName string
	pageSize  int32
	logger    *slog.Logger
}

// Option configures a Purger.
type Option func(*Purger)

// WithPageSize limits the number of keys fetched per query page.
func WithPageSize(n int32) Option {
	return func(p *Purger) {
		p.pageSize = n
	}
}

// WithLogger sets the progress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Purger) {
		p.logger = logger
	}
}

// NewPurger creates a new Purger.
func NewPurger(client DynamoDBClient, tableName string, opts ...Option) *Purger {
	p := &Purger{
		client:    client,
		tableName: tableName,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Purge deletes every record whose partition key is EXAM#{examID}, regardless
// of sort key. Keys are read a page at a time and each is deleted before the
// next page is requested. A partition with no records is a successful no-op.
func (p *Purger) Purge(ctx context.Context, examID string) (*Result, error) {
	result := &Result{ExamID: examID}

	err := p.walk(ctx, examID, func(key dynamo.Key) error {
		_, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(p.tableName),
			Key:       key.AttributeValues(),
		})
		if err != nil {
			return &DeleteError{Key: key, Err: err}
		}
		result.Deleted = append(result.Deleted, key)

		p.logger.InfoContext(ctx, "Deleted record",
			slog.String("pk", key.PK),
			slog.String("sk", key.SK),
		)
		return nil
	})
	if err != nil {
		return result, err
	}

	p.logger.InfoContext(ctx, "Purge complete",
		slog.String("exam_id", examID),
		slog.Int("deleted", len(result.Deleted)),
	)
	return result, nil
}

// ListKeys returns the keys of every record in the exam partition without
// modifying anything.
func (p *Purger) ListKeys(ctx context.Context, examID string) ([]dynamo.Key, error) {
	var keys []dynamo.Key
	err := p.walk(ctx, examID, func(key dynamo.Key) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// BuildDeleteItem returns the transaction item that deletes key, without
// executing it.
func (p *Purger) BuildDeleteItem(key dynamo.Key) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(p.tableName),
			Key:       key.AttributeValues(),
		},
	}
}

// walk calls fn for each key in the partition in the order the store returns them.
func (p *Purger) walk(ctx context.Context, examID string, fn func(dynamo.Key) error) error {
	if examID == "" {
		return ErrMissingExamID
	}
	pk := dynamo.ExamPK(examID)

	input, err := p.queryInput(pk)
	if err != nil {
		return err
	}

	paginator := dynamodb.NewQueryPaginator(p.client, input, func(o *dynamodb.QueryPaginatorOptions) {
		if p.pageSize > 0 {
			o.Limit = p.pageSize
		}
	})

	page := 0
	for paginator.HasMorePages() {
		page++
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return &ScanError{PK: pk, Page: page, Err: err}
		}

		for _, item := range output.Items {
			key, ok := dynamo.KeyOf(item)
			if !ok {
				return &ScanError{PK: pk, Page: page, Err: errors.New("item without string PK/SK")}
			}
			if err := fn(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Purger) queryInput(pk string) (*dynamodb.QueryInput, error) {
	keyCond := expression.Key(dynamo.AttrPK).Equal(expression.Value(pk))
	proj := expression.NamesList(expression.Name(dynamo.AttrPK), expression.Name(dynamo.AttrSK))

	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithProjection(proj).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build purge query: %w", err)
	}

	return &dynamodb.QueryInput{
		TableName:                 aws.String(p.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}
