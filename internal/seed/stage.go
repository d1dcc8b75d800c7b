package seed

import (
	"fmt"
	"time"

	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
)

// Stage is a state of a pipeline run.
type Stage string

// Sequential runs move START → PURGING → PURGED → WRITING_EXAM → EXAM_WRITTEN →
// WRITING_QUESTIONS → DONE. Atomic runs move START → PURGING → COMMITTING → DONE.
// Any failure moves to ABORTED; nothing is rolled back.
const (
	StageStart            Stage = "START"
	StagePurging          Stage = "PURGING"
	StagePurged           Stage = "PURGED"
	StageWritingExam      Stage = "WRITING_EXAM"
	StageExamWritten      Stage = "EXAM_WRITTEN"
	StageWritingQuestions Stage = "WRITING_QUESTIONS"
	StageCommitting       Stage = "COMMITTING"
	StageDone             Stage = "DONE"
	StageAborted          Stage = "ABORTED"
)

// RunError reports the stage a run aborted in.
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("seed aborted during %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Report describes how far a run got. It is returned for failed runs too.
type Report struct {
	RunID            string
	ExamID           string
	Stage            Stage
	FailedStage      Stage
	DryRun           bool
	Atomic           bool
	Deleted          []dynamo.Key
	ExamWritten      bool
	QuestionsWritten int
	Verification     *Verification
	StartedAt        time.Time
	FinishedAt       time.Time
}
