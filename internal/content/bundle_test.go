package content

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

const validBundle = `{
  "exam": {
    "title": "Sample",
    "category": "Networking",
    "difficulty": "Advanced",
    "totalQuestions": 2,
    "timeLimitMinutes": 30,
    "passingScore": 80,
    "pointsPerQuestion": 2,
    "isActive": true,
    "tierAccess": ["PREMIUM"]
  },
  "questions": [
    {
      "questionNumber": 1,
      "questionText": "Q1",
      "options": [{"id": "a", "text": "yes", "isCorrect": true}, {"id": "b", "text": "no", "isCorrect": false}],
      "points": 2,
      "difficulty": "hard",
      "tierAccess": ["BASIC", "PREMIUM"]
    },
    {
      "questionNumber": 2,
      "questionText": "Q2",
      "options": [{"id": "a", "text": "yes", "isCorrect": false}, {"id": "b", "text": "no", "isCorrect": true}],
      "points": 2,
      "difficulty": "hard"
    }
  ]
}`

func TestLoad_DefaultBundle(t *testing.T) {
	b, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Name != DefaultBundle {
		t.Errorf("Name = %q, want %q", b.Name, DefaultBundle)
	}
	if len(b.Questions) == 0 {
		t.Fatal("default bundle has no questions")
	}
	// The embedded content is expected to advertise exactly what it ships.
	if b.Exam.TotalQuestions != len(b.Questions) {
		t.Errorf("totalQuestions = %d, but bundle has %d questions", b.Exam.TotalQuestions, len(b.Questions))
	}
}

func TestLoad_EveryEmbeddedBundleIsValid(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	if !slices.Contains(names, DefaultBundle) {
		t.Errorf("Names() = %v, missing %q", names, DefaultBundle)
	}
	for _, name := range names {
		if _, err := Load(name); err != nil {
			t.Errorf("Load(%q) error = %v", name, err)
		}
	}
}

func TestLoad_NotFound(t *testing.T) {
	if _, err := Load("no-such-exam"); !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("Load() error = %v, want %v", err, ErrBundleNotFound)
	}
}

func TestParse_Valid(t *testing.T) {
	b, err := Parse([]byte(validBundle))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(b.Questions) != 2 {
		t.Errorf("questions = %d, want 2", len(b.Questions))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantMsg string
	}{
		{
			name:   "unknown field",
			mutate: func(s string) string { return strings.Replace(s, `"title"`, `"titel": "x", "title"`, 1) },
		},
		{
			name:   "missing title",
			mutate: func(s string) string { return strings.Replace(s, `"title": "Sample",`, "", 1) },
		},
		{
			name:   "unknown tier",
			mutate: func(s string) string { return strings.Replace(s, `["BASIC", "PREMIUM"]`, `["GOLD"]`, 1) },
		},
		{
			name:    "duplicate question number",
			mutate:  func(s string) string { return strings.Replace(s, `"questionNumber": 2`, `"questionNumber": 1`, 1) },
			wantMsg: "duplicate question number 1",
		},
		{
			name:   "zero question number",
			mutate: func(s string) string { return strings.Replace(s, `"questionNumber": 2`, `"questionNumber": 0`, 1) },
		},
		{
			name: "no correct option",
			mutate: func(s string) string {
				return strings.Replace(s, `{"id": "b", "text": "no", "isCorrect": true}`, `{"id": "b", "text": "no", "isCorrect": false}`, 1)
			},
			wantMsg: "question 2 has no correct option",
		},
		{
			name:    "duplicate option id",
			mutate:  func(s string) string { return strings.Replace(s, `{"id": "b", "text": "no", "isCorrect": false}`, `{"id": "a", "text": "no", "isCorrect": false}`, 1) },
			wantMsg: `duplicate option id "a"`,
		},
		{
			name: "no questions",
			mutate: func(s string) string {
				i := strings.Index(s, `"questions"`)
				return s[:i] + `"questions": []}`
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(validBundle)))
			if !errors.Is(err, ErrInvalidBundle) {
				t.Fatalf("Parse() error = %v, want %v", err, ErrInvalidBundle)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestBundle_Items(t *testing.T) {
	b, err := Parse([]byte(validBundle))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	e, questions := b.Items("net-adv", now)

	if e.ExamID != "net-adv" || e.PK() != "EXAM#net-adv" {
		t.Errorf("exam id/pk = %q/%q", e.ExamID, e.PK())
	}
	if e.Index.GSI2PK != "CATEGORY#networking#DIFFICULTY#advanced" {
		t.Errorf("GSI2PK = %q", e.Index.GSI2PK)
	}
	if !e.CreatedAt.Equal(now) || !e.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", e.CreatedAt, e.UpdatedAt, now)
	}
	if len(questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(questions))
	}
	for i, q := range questions {
		if q.ExamID != "net-adv" {
			t.Errorf("questions[%d].ExamID = %q", i, q.ExamID)
		}
		if q.QuestionNumber != b.Questions[i].QuestionNumber {
			t.Errorf("questions[%d] out of bundle order", i)
		}
		if !reflect.DeepEqual(q.TierAccess, b.Questions[i].TierAccess) {
			t.Errorf("questions[%d].TierAccess = %v, want %v", i, q.TierAccess, b.Questions[i].TierAccess)
		}
	}
	if questions[1].TierAccess != nil {
		t.Errorf("question without tier access gained one: %v", questions[1].TierAccess)
	}

	// Records must not alias the bundle.
	questions[0].TierAccess[0] = "FREE"
	if b.Questions[0].TierAccess[0] != "BASIC" {
		t.Error("Items() shares the tier access slice with the bundle")
	}
}
