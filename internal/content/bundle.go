// Package content holds the exam bundles compiled into the binary and turns
// them into store records.
package content

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jarrod-lowe/exam-seed/internal/exam"
)

// DefaultBundle is the bundle seeded when none is named.
const DefaultBundle = "cloud-practitioner"

//go:embed bundles/*.json
var bundleFS embed.FS

var validate = validator.New()

// Error types for bundle loading.
var (
	ErrBundleNotFound = errors.New("bundle not found")
	ErrInvalidBundle  = errors.New("invalid bundle")
)

// ExamMetadata is the authored description of an exam. TotalQuestions is kept
// as written and is not derived from the question list.
type ExamMetadata struct {
	Title             string   `json:"title" validate:"required"`
	Description       string   `json:"description"`
	Category          string   `json:"category" validate:"required"`
	Difficulty        string   `json:"difficulty" validate:"required"`
	TotalQuestions    int      `json:"totalQuestions" validate:"min=0"`
	TimeLimitMinutes  int      `json:"timeLimitMinutes" validate:"min=1"`
	PassingScore      int      `json:"passingScore" validate:"min=0,max=100"`
	PointsPerQuestion int      `json:"pointsPerQuestion" validate:"min=0"`
	IsActive          bool     `json:"isActive"`
	TierAccess        []string `json:"tierAccess" validate:"dive,oneof=FREE BASIC PREMIUM"`
}

// Question is one authored question.
type Question struct {
	QuestionNumber int                 `json:"questionNumber" validate:"min=1,max=9999"`
	QuestionText   string              `json:"questionText" validate:"required"`
	Options        []exam.AnswerOption `json:"options" validate:"min=2,dive"`
	Explanation    string              `json:"explanation"`
	Points         int                 `json:"points" validate:"min=0"`
	Categories     []string            `json:"categories"`
	Difficulty     string              `json:"difficulty" validate:"required"`
	TierAccess     []string            `json:"tierAccess" validate:"dive,oneof=FREE BASIC PREMIUM"`
	IsPremium      bool                `json:"isPremium"`
}

// Bundle is a complete set of content for one exam.
type Bundle struct {
	Name      string       `json:"-"`
	Exam      ExamMetadata `json:"exam"`
	Questions []Question   `json:"questions" validate:"min=1,dive"`
}

// Names lists the embedded bundles.
func Names() ([]string, error) {
	entries, err := bundleFS.ReadDir("bundles")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Load decodes and validates the named embedded bundle.
func Load(name string) (*Bundle, error) {
	if name == "" {
		name = DefaultBundle
	}
	data, err := bundleFS.ReadFile(path.Join("bundles", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, name)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", name, err)
	}
	b.Name = name
	return b, nil
}

// Parse decodes a bundle document and validates it.
func Parse(data []byte) (*Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks field constraints and the cross-field rules the tags cannot
// express: unique question numbers, unique option ids and at least one correct
// option per question.
func (b *Bundle) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	seen := make(map[int]bool, len(b.Questions))
	for _, q := range b.Questions {
		if seen[q.QuestionNumber] {
			return fmt.Errorf("%w: duplicate question number %d", ErrInvalidBundle, q.QuestionNumber)
		}
		seen[q.QuestionNumber] = true

		optionIDs := make(map[string]bool, len(q.Options))
		correct := 0
		for _, o := range q.Options {
			if optionIDs[o.ID] {
				return fmt.Errorf("%w: question %d has duplicate option id %q", ErrInvalidBundle, q.QuestionNumber, o.ID)
			}
			optionIDs[o.ID] = true
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return fmt.Errorf("%w: question %d has no correct option", ErrInvalidBundle, q.QuestionNumber)
		}
	}
	return nil
}

// Items converts the bundle into the exam record and question records for
// examID, in bundle order. Both audit timestamps are set to now.
func (b *Bundle) Items(examID string, now time.Time) (*exam.ExamItem, []*exam.QuestionItem) {
	m := b.Exam
	e := &exam.ExamItem{
		ExamID:            examID,
		Title:             m.Title,
		Description:       m.Description,
		Category:          m.Category,
		Difficulty:        m.Difficulty,
		TotalQuestions:    m.TotalQuestions,
		TimeLimitMinutes:  m.TimeLimitMinutes,
		PassingScore:      m.PassingScore,
		PointsPerQuestion: m.PointsPerQuestion,
		IsActive:          m.IsActive,
		TierAccess:        slices.Clone(m.TierAccess),
		Index:             exam.ComputeIndexKeys(examID, m.Category, m.Difficulty, m.IsActive),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	questions := make([]*exam.QuestionItem, 0, len(b.Questions))
	for _, q := range b.Questions {
		questions = append(questions, &exam.QuestionItem{
			ExamID:         examID,
			QuestionNumber: q.QuestionNumber,
			QuestionText:   q.QuestionText,
			Options:        slices.Clone(q.Options),
			Explanation:    q.Explanation,
			Points:         q.Points,
			Categories:     slices.Clone(q.Categories),
			Difficulty:     q.Difficulty,
			TierAccess:     slices.Clone(q.TierAccess),
			IsPremium:      q.IsPremium,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return e, questions
}
