package exam

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
)

// examRecord is the stored shape of an ExamItem.
type examRecord struct {
	PK                string   `dynamodbav:"PK"`
	SK                string   `dynamodbav:"SK"`
	EntityType        string   `dynamodbav:"entityType"`
	ExamID            string   `dynamodbav:"examId"`
	Title             string   `dynamodbav:"title"`
	Description       string   `dynamodbav:"description"`
	Category          string   `dynamodbav:"category"`
	Difficulty        string   `dynamodbav:"difficulty"`
	TotalQuestions    int      `dynamodbav:"totalQuestions"`
	TimeLimitMinutes  int      `dynamodbav:"timeLimitMinutes"`
	PassingScore      int      `dynamodbav:"passingScore"`
	PointsPerQuestion int      `dynamodbav:"pointsPerQuestion"`
	IsActive          bool     `dynamodbav:"isActive"`
	TierAccess        []string `dynamodbav:"tierAccess,omitempty"`
	GSI1PK            string   `dynamodbav:"GSI1PK"`
	GSI1SK            string   `dynamodbav:"GSI1SK"`
	GSI2PK            string   `dynamodbav:"GSI2PK"`
	GSI2SK            string   `dynamodbav:"GSI2SK"`
	CreatedAt         string   `dynamodbav:"createdAt"`
	UpdatedAt         string   `dynamodbav:"updatedAt"`
}

// questionRecord is the stored shape of a QuestionItem.
type questionRecord struct {
	PK             string         `dynamodbav:"PK"`
	SK             string         `dynamodbav:"SK"`
	EntityType     string         `dynamodbav:"entityType"`
	ExamID         string         `dynamodbav:"examId"`
	QuestionNumber int            `dynamodbav:"questionNumber"`
	QuestionText   string         `dynamodbav:"questionText"`
	Options        []AnswerOption `dynamodbav:"options"`
	Explanation    string         `dynamodbav:"explanation"`
	Points         int            `dynamodbav:"points"`
	Categories     []string       `dynamodbav:"categories,omitempty"`
	Difficulty     string         `dynamodbav:"difficulty"`
	TierAccess     []string       `dynamodbav:"tierAccess,omitempty"`
	IsPremium      bool           `dynamodbav:"isPremium"`
	CreatedAt      string         `dynamodbav:"createdAt"`
	UpdatedAt      string         `dynamodbav:"updatedAt"`
}

// MarshalExamItem converts an ExamItem to DynamoDB attribute values.
func MarshalExamItem(e *ExamItem) (map[string]types.AttributeValue, error) {
	rec := examRecord{
		PK:                e.PK(),
		SK:                e.SK(),
		EntityType:        EntityTypeExam,
		ExamID:            e.ExamID,
		Title:             e.Title,
		Description:       e.Description,
		Category:          e.Category,
		Difficulty:        e.Difficulty,
		TotalQuestions:    e.TotalQuestions,
		TimeLimitMinutes:  e.TimeLimitMinutes,
		PassingScore:      e.PassingScore,
		PointsPerQuestion: e.PointsPerQuestion,
		IsActive:          e.IsActive,
		TierAccess:        e.TierAccess,
		GSI1PK:            e.Index.GSI1PK,
		GSI1SK:            e.Index.GSI1SK,
		GSI2PK:            e.Index.GSI2PK,
		GSI2SK:            e.Index.GSI2SK,
		CreatedAt:         formatTime(e.CreatedAt),
		UpdatedAt:         formatTime(e.UpdatedAt),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exam %s: %w", e.ExamID, err)
	}
	return item, nil
}

// UnmarshalExamItem converts DynamoDB attribute values to an ExamItem.
func UnmarshalExamItem(item map[string]types.AttributeValue) (*ExamItem, error) {
	var rec examRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exam: %w", err)
	}
	if rec.EntityType != EntityTypeExam {
		return nil, fmt.Errorf("unexpected entity type %q for exam record", rec.EntityType)
	}
	return &ExamItem{
		ExamID:            rec.ExamID,
		Title:             rec.Title,
		Description:       rec.Description,
		Category:          rec.Category,
		Difficulty:        rec.Difficulty,
		TotalQuestions:    rec.TotalQuestions,
		TimeLimitMinutes:  rec.TimeLimitMinutes,
		PassingScore:      rec.PassingScore,
		PointsPerQuestion: rec.PointsPerQuestion,
		IsActive:          rec.IsActive,
		TierAccess:        rec.TierAccess,
		Index: IndexKeys{
			GSI1PK: rec.GSI1PK,
			GSI1SK: rec.GSI1SK,
			GSI2PK: rec.GSI2PK,
			GSI2SK: rec.GSI2SK,
		},
		CreatedAt: parseTime(rec.CreatedAt),
		UpdatedAt: parseTime(rec.UpdatedAt),
	}, nil
}

// MarshalQuestionItem converts a QuestionItem to DynamoDB attribute values.
// The partition is taken from examID rather than the item so a question can
// only ever be written under the exam it is being seeded for.
func MarshalQuestionItem(examID string, q *QuestionItem) (map[string]types.AttributeValue, error) {
	rec := questionRecord{
		PK:             dynamo.ExamPK(examID),
		SK:             QuestionSK(q.QuestionNumber),
		EntityType:     EntityTypeQuestion,
		ExamID:         examID,
		QuestionNumber: q.QuestionNumber,
		QuestionText:   q.QuestionText,
		Options:        q.Options,
		Explanation:    q.Explanation,
		Points:         q.Points,
		Categories:     q.Categories,
		Difficulty:     q.Difficulty,
		TierAccess:     q.TierAccess,
		IsPremium:      q.IsPremium,
		CreatedAt:      formatTime(q.CreatedAt),
		UpdatedAt:      formatTime(q.UpdatedAt),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question %d: %w", q.QuestionNumber, err)
	}
	return item, nil
}

// UnmarshalQuestionItem converts DynamoDB attribute values to a QuestionItem.
func UnmarshalQuestionItem(item map[string]types.AttributeValue) (*QuestionItem, error) {
	var rec questionRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question: %w", err)
	}
	if rec.EntityType != EntityTypeQuestion {
		return nil, fmt.Errorf("unexpected entity type %q for question record", rec.EntityType)
	}
	return &QuestionItem{
		ExamID:         rec.ExamID,
		QuestionNumber: rec.QuestionNumber,
		QuestionText:   rec.QuestionText,
		Options:        rec.Options,
		Explanation:    rec.Explanation,
		Points:         rec.Points,
		Categories:     rec.Categories,
		Difficulty:     rec.Difficulty,
		TierAccess:     rec.TierAccess,
		IsPremium:      rec.IsPremium,
		CreatedAt:      parseTime(rec.CreatedAt),
		UpdatedAt:      parseTime(rec.UpdatedAt),
	}, nil
}

// EntityType returns the discriminator of a raw item, or "" if absent.
func EntityType(item map[string]types.AttributeValue) string {
	if v, ok := item[dynamo.AttrEntityType].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
