package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Error types for write operations.
var (
	ErrMissingExamID           = errors.New("exam id is required")
	ErrMissingIndexKeys        = errors.New("exam index keys have not been computed")
	ErrInvalidQuestionNumber   = errors.New("question number must be between 1 and 9999")
	ErrDuplicateQuestionNumber = errors.New("duplicate question number")
)

// QuestionWriteError reports the question a WriteQuestions call stopped at.
type QuestionWriteError struct {
	QuestionNumber int
	SK             string
	Err            error
}

func (e *QuestionWriteError) Error() string {
	return fmt.Sprintf("failed to write question %d (%s): %v", e.QuestionNumber, e.SK, e.Err)
}

func (e *QuestionWriteError) Unwrap() error {
	return e.Err
}

// PutItemAPI is the subset of the DynamoDB client used by Writer.
type PutItemAPI interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Writer writes exam and question records with unconditional puts.
type Writer struct {
	client    PutItemAPI
	tableName string
	logger    *slog.Logger
}

// NewWriter creates a new Writer. A nil logger discards progress output.
func NewWriter(client PutItemAPI, tableName string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// WriteExam writes the exam metadata record, overwriting any record with the same key.
func (w *Writer) WriteExam(ctx context.Context, e *ExamItem) error {
	item, err := w.examItem(e)
	if err != nil {
		return err
	}

	_, err = w.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(w.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to write exam %s: %w", e.ExamID, err)
	}

	w.logger.InfoContext(ctx, "Wrote exam metadata",
		slog.String("exam_id", e.ExamID),
		slog.String("pk", e.PK()),
		slog.String("sk", e.SK()),
	)
	return nil
}

// WriteQuestions writes one record per question, in order, waiting for each put
// before issuing the next. It returns the number of questions written. On failure
// the remaining questions are not written and the error is a *QuestionWriteError.
func (w *Writer) WriteQuestions(ctx context.Context, examID string, questions []*QuestionItem) (int, error) {
	if examID == "" {
		return 0, ErrMissingExamID
	}
	if err := ValidateQuestionNumbers(questions); err != nil {
		return 0, err
	}

	written := 0
	for _, q := range questions {
		sk := QuestionSK(q.QuestionNumber)

		item, err := MarshalQuestionItem(examID, q)
		if err != nil {
			return written, &QuestionWriteError{QuestionNumber: q.QuestionNumber, SK: sk, Err: err}
		}

		_, err = w.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(w.tableName),
			Item:      item,
		})
		if err != nil {
			return written, &QuestionWriteError{QuestionNumber: q.QuestionNumber, SK: sk, Err: err}
		}
		written++

		w.logger.InfoContext(ctx, "Wrote question",
			slog.String("exam_id", examID),
			slog.Int("question_number", q.QuestionNumber),
			slog.String("sk", sk),
		)
	}

	return written, nil
}

// BuildPutExamItem returns the transaction item for writing the exam record,
// without executing it.
func (w *Writer) BuildPutExamItem(e *ExamItem) (types.TransactWriteItem, error) {
	item, err := w.examItem(e)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(w.tableName),
			Item:      item,
		},
	}, nil
}

// BuildPutQuestionItem returns the transaction item for writing one question
// record, without executing it.
func (w *Writer) BuildPutQuestionItem(examID string, q *QuestionItem) (types.TransactWriteItem, error) {
	item, err := MarshalQuestionItem(examID, q)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(w.tableName),
			Item:      item,
		},
	}, nil
}

func (w *Writer) examItem(e *ExamItem) (map[string]types.AttributeValue, error) {
	if e.ExamID == "" {
		return nil, ErrMissingExamID
	}
	if e.Index.IsZero() {
		return nil, ErrMissingIndexKeys
	}
	return MarshalExamItem(e)
}

// ValidateQuestionNumbers checks that every ordinal is positive, fits the sort
// key width and is unique within the list.
func ValidateQuestionNumbers(questions []*QuestionItem) error {
	seen := make(map[int]bool, len(questions))
	for _, q := range questions {
		if q.QuestionNumber < 1 || q.QuestionNumber > MaxQuestionNumber {
			return fmt.Errorf("%w: %d", ErrInvalidQuestionNumber, q.QuestionNumber)
		}
		if seen[q.QuestionNumber] {
			return fmt.Errorf("%w: %d", ErrDuplicateQuestionNumber, q.QuestionNumber)
		}
		seen[q.QuestionNumber] = true
	}
	return nil
}
