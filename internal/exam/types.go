// Package exam provides types and write operations for exam and question records.
package exam

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
)

// ErrInvalidQuestionSK is returned when a sort key is not a question key.
var ErrInvalidQuestionSK = errors.New("invalid question sort key")

// AnswerOption is one selectable answer of a question.
type AnswerOption struct {
	ID        string `dynamodbav:"id" json:"id" validate:"required"`
	Text      string `dynamodbav:"text" json:"text" validate:"required"`
	IsCorrect bool   `dynamodbav:"isCorrect" json:"isCorrect"`
}

// IndexKeys holds the secondary index keys of an exam record.
// GSI1: active exams by category. GSI2: exams by category and difficulty.
type IndexKeys struct {
	GSI1PK string
	GSI1SK string
	GSI2PK string
	GSI2SK string
}

// IsZero reports whether no index key has been computed.
func (k IndexKeys) IsZero() bool {
	return k == IndexKeys{}
}

// ExamItem represents exam metadata stored in DynamoDB.
// PK: EXAM#{examId}
// SK: METADATA
type ExamItem struct {
	ExamID            string
	Title             string
	Description       string
	Category          string
	Difficulty        string
	TotalQuestions    int
	TimeLimitMinutes  int
	PassingScore      int
	PointsPerQuestion int
	IsActive          bool
	TierAccess        []string
	Index             IndexKeys
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PK returns the DynamoDB partition key for this exam.
func (e *ExamItem) PK() string {
	return dynamo.ExamPK(e.ExamID)
}

// SK returns the DynamoDB sort key for this exam. It is always the metadata marker.
func (e *ExamItem) SK() string {
	return SKMetadata
}

// Key returns the primary key of this exam.
func (e *ExamItem) Key() dynamo.Key {
	return dynamo.Key{PK: e.PK(), SK: e.SK()}
}

// ComputeIndexKeys derives both secondary index key pairs from the exam's
// category, difficulty and active flag. Category and difficulty are case-folded
// so that readers can query without knowing the authored casing.
func ComputeIndexKeys(examID, category, difficulty string, isActive bool) IndexKeys {
	fold := cases.Fold()
	cat := PrefixCategory + fold.String(category)
	return IndexKeys{
		GSI1PK: cat,
		GSI1SK: fmt.Sprintf("%s%t#%s", PrefixActive, isActive, dynamo.ExamPK(examID)),
		GSI2PK: cat + "#" + PrefixDifficulty + fold.String(difficulty),
		GSI2SK: dynamo.ExamPK(examID),
	}
}

// QuestionItem represents a question stored in DynamoDB.
// PK: EXAM#{examId}
// SK: QUESTION#{questionNumber} (zero-padded to 4 digits)
type QuestionItem struct {
	ExamID         string
	QuestionNumber int
	QuestionText   string
	Options        []AnswerOption
	Explanation    string
	Points         int
	Categories     []string
	Difficulty     string
	TierAccess     []string
	IsPremium      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PK returns the DynamoDB partition key for this question.
func (q *QuestionItem) PK() string {
	return dynamo.ExamPK(q.ExamID)
}

// SK returns the DynamoDB sort key for this question.
func (q *QuestionItem) SK() string {
	return QuestionSK(q.QuestionNumber)
}

// Key returns the primary key of this question.
func (q *QuestionItem) Key() dynamo.Key {
	return dynamo.Key{PK: q.PK(), SK: q.SK()}
}

// QuestionSK returns the sort key for a question ordinal.
// The ordinal is zero-padded to 4 digits to keep lexicographic and numeric order aligned.
func QuestionSK(questionNumber int) string {
	return fmt.Sprintf("%s%04d", PrefixQuestion, questionNumber)
}

// ParseQuestionSK returns the ordinal encoded in a question sort key.
func ParseQuestionSK(sk string) (int, error) {
	suffix, ok := strings.CutPrefix(sk, PrefixQuestion)
	if !ok || suffix == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuestionSK, sk)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuestionSK, sk)
	}
	return n, nil
}
