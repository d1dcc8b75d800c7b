package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
	"github.com/jarrod-lowe/exam-seed/internal/dynamotest"
	"github.com/jarrod-lowe/exam-seed/internal/exam"
)

func seedExam(t *testing.T, table *dynamotest.Table, examID string, questions int) {
	t.Helper()
	bundle := testBundle(questions)
	e, qs := bundle.Items(examID, fixedNow)
	item, err := exam.MarshalExamItem(e)
	if err != nil {
		t.Fatalf("MarshalExamItem() error = %v", err)
	}
	table.Seed(item)
	for _, q := range qs {
		item, err := exam.MarshalQuestionItem(examID, q)
		if err != nil {
			t.Fatalf("MarshalQuestionItem() error = %v", err)
		}
		table.Seed(item)
	}
}

func TestVerify_Clean(t *testing.T) {
	table := dynamotest.NewTable()
	seedExam(t, table, "exam-1", 3)
	seedExam(t, table, "exam-10", 5)

	v, err := NewVerifier(table, testTable).Verify(context.Background(), "exam-1", 3)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !v.OK() {
		t.Errorf("Drift = %v, want none", v.Drift)
	}
	if v.ExamRecords != 1 || v.QuestionRecords != 3 || v.DeclaredTotal != 3 {
		t.Errorf("Verification = %+v", v)
	}
}

func TestVerify_Drift(t *testing.T) {
	table := dynamotest.NewTable()
	seedRecord(t, table, "EXAM#exam-1", "QUESTION#0001")
	seedRecord(t, table, "EXAM#exam-1", "NOTES")

	v, err := NewVerifier(table, testTable).Verify(context.Background(), "exam-1", 2)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	// Legacy records carry no known entity type, so both are unknown.
	if v.ExamRecords != 0 || v.QuestionRecords != 0 {
		t.Errorf("Verification = %+v", v)
	}
	if len(v.UnknownRecords) != 2 || v.UnknownRecords[0] != (dynamo.Key{PK: "EXAM#exam-1", SK: "NOTES"}) {
		t.Errorf("UnknownRecords = %v", v.UnknownRecords)
	}
	// missing exam, wrong count, two unknown records
	if len(v.Drift) != 4 {
		t.Errorf("Drift = %v, want 4 entries", v.Drift)
	}
}

func TestVerify_QueryError(t *testing.T) {
	_, err := NewVerifier(failingQuery{}, testTable).Verify(context.Background(), "exam-1", 1)
	if err == nil {
		t.Fatal("Verify() expected error")
	}
	if errors.Is(err, ErrMissingExamRecord) {
		t.Errorf("error = %v, want query failure", err)
	}
}
