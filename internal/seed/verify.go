package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
	"github.com/jarrod-lowe/exam-seed/internal/exam"
)

// ErrMissingExamRecord is reported when a verified partition has no METADATA record.
var ErrMissingExamRecord = errors.New("exam metadata record not found")

// QueryAPI is the read access Verify needs.
type QueryAPI interface {
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Verification summarises what is stored for an exam after a run.
// Drift is reported only; nothing is corrected.
type Verification struct {
	ExamRecords     int
	QuestionRecords int
	Expected        int
	DeclaredTotal   int
	UnknownRecords  []dynamo.Key
	Drift           []string
}

// OK reports whether the partition matches what was written.
func (v *Verification) OK() bool {
	return len(v.Drift) == 0
}

// Verifier re-reads an exam partition.
type Verifier struct {
	client    QueryAPI
	tableName string
}

// NewVerifier creates a new Verifier.
func NewVerifier(client QueryAPI, tableName string) *Verifier {
	return &Verifier{client: client, tableName: tableName}
}

// Verify counts the records in the exam partition and compares them with the
// expected question count and the totalQuestions declared on the exam record.
func (v *Verifier) Verify(ctx context.Context, examID string, expected int) (*Verification, error) {
	keyCond := expression.Key(dynamo.AttrPK).Equal(expression.Value(dynamo.ExamPK(examID)))
	proj := expression.NamesList(
		expression.Name(dynamo.AttrPK),
		expression.Name(dynamo.AttrSK),
		expression.Name(dynamo.AttrEntityType),
		expression.Name(exam.AttrTotalQuestions),
	)
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	result := &Verification{Expected: expected}
	paginator := dynamodb.NewQueryPaginator(v.client, &dynamodb.QueryInput{
		TableName:                 aws.String(v.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ProjectionExpression:      expr.Projection(),
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", dynamo.ExamPK(examID), err)
		}
		for _, item := range page.Items {
			key, _ := dynamo.KeyOf(item)
			switch {
			case key.SK == exam.SKMetadata && exam.EntityType(item) == exam.EntityTypeExam:
				result.ExamRecords++
				if av, ok := item[exam.AttrTotalQuestions]; ok {
					if err := attributevalue.Unmarshal(av, &result.DeclaredTotal); err != nil {
						return nil, fmt.Errorf("failed to read %s: %w", exam.AttrTotalQuestions, err)
					}
				}
			case strings.HasPrefix(key.SK, exam.PrefixQuestion) && exam.EntityType(item) == exam.EntityTypeQuestion:
				result.QuestionRecords++
			default:
				result.UnknownRecords = append(result.UnknownRecords, key)
			}
		}
	}

	if result.ExamRecords == 0 {
		result.Drift = append(result.Drift, ErrMissingExamRecord.Error())
	}
	if result.QuestionRecords != expected {
		result.Drift = append(result.Drift, fmt.Sprintf("found %d question records, expected %d", result.QuestionRecords, expected))
	}
	if result.ExamRecords > 0 && result.DeclaredTotal != result.QuestionRecords {
		result.Drift = append(result.Drift, fmt.Sprintf("totalQuestions is %d but %d question records are stored", result.DeclaredTotal, result.QuestionRecords))
	}
	for _, k := range result.UnknownRecords {
		result.Drift = append(result.Drift, fmt.Sprintf("unexpected record %s/%s", k.PK, k.SK))
	}
	return result, nil
}
