package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
	"github.com/jarrod-lowe/exam-seed/internal/exam"
)

// runAtomic replaces the partition in a single TransactWriteItems call.
// Existing records that the bundle rewrites are overwritten by their put;
// DynamoDB rejects two actions on one item in the same transaction.
func (p *Pipeline) runAtomic(ctx context.Context, report *Report, examItem *exam.ExamItem, questions []*exam.QuestionItem) error {
	p.enter(ctx, report, StagePurging)
	existing, err := p.purger.ListKeys(ctx, examItem.ExamID)
	if err != nil {
		return p.abort(report, StagePurging, err)
	}

	items, deletes, err := p.buildTransaction(examItem, questions, existing)
	if err != nil {
		return p.abort(report, StagePurging, err)
	}
	if len(items) > dynamo.MaxTransactItems {
		return p.abort(report, StagePurging, fmt.Errorf("%w: %d actions, limit %d", ErrTooManyActions, len(items), dynamo.MaxTransactItems))
	}

	p.enter(ctx, report, StageCommitting)
	err = p.traced(ctx, "Commit", func(ctx context.Context) error {
		_, err := p.transactor.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		return err
	})
	if err != nil {
		return p.abort(report, StageCommitting, err)
	}

	report.Deleted = deletes
	report.ExamWritten = true
	report.QuestionsWritten = len(questions)
	p.logger.InfoContext(ctx, "Committed replacement",
		slog.String("exam_id", examItem.ExamID),
		slog.Int("actions", len(items)),
		slog.Int("deleted", len(deletes)),
	)
	p.enter(ctx, report, StageDone)
	return nil
}

func (p *Pipeline) buildTransaction(examItem *exam.ExamItem, questions []*exam.QuestionItem, existing []dynamo.Key) ([]types.TransactWriteItem, []dynamo.Key, error) {
	rewritten := make(map[dynamo.Key]bool, len(questions)+1)
	rewritten[examItem.Key()] = true
	for _, q := range questions {
		rewritten[q.Key()] = true
	}

	items := make([]types.TransactWriteItem, 0, len(existing)+len(questions)+1)
	var deletes []dynamo.Key
	for _, k := range existing {
		if rewritten[k] {
			continue
		}
		items = append(items, p.purger.BuildDeleteItem(k))
		deletes = append(deletes, k)
	}

	put, err := p.examWriter.BuildPutExamItem(examItem)
	if err != nil {
		return nil, nil, err
	}
	items = append(items, put)

	for _, q := range questions {
		put, err := p.questionWriter.BuildPutQuestionItem(examItem.ExamID, q)
		if err != nil {
			return nil, nil, &exam.QuestionWriteError{QuestionNumber: q.QuestionNumber, SK: q.SK(), Err: err}
		}
		items = append(items, put)
	}
	return items, deletes, nil
}
