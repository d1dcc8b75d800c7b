// Package seed replaces the stored content of one exam with a bundle:
// purge the partition, write the exam record, then write every question.
package seed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarrod-lowe/exam-seed/internal/content"
	"github.com/jarrod-lowe/exam-seed/internal/dynamo"
	"github.com/jarrod-lowe/exam-seed/internal/exam"
	"github.com/jarrod-lowe/exam-seed/internal/purge"
	"github.com/jarrod-lowe/exam-seed/internal/seedevent"
)

const tracerName = "exam-seed"

// Error types for pipeline runs.
var (
	ErrMissingExamID  = errors.New("exam id is required")
	ErrMissingBundle  = errors.New("content bundle is required")
	ErrNoTransactor   = errors.New("atomic mode requires a transaction writer")
	ErrNoVerifier     = errors.New("verification requires a query client")
	ErrTooManyActions = errors.New("replacement does not fit in a single transaction")
)

// Purger removes the existing records of an exam.
type Purger interface {
	Purge(ctx context.Context, examID string) (*purge.Result, error)
	ListKeys(ctx context.Context, examID string) ([]dynamo.Key, error)
	BuildDeleteItem(key dynamo.Key) types.TransactWriteItem
}

// ExamWriter writes the exam metadata record.
type ExamWriter interface {
	WriteExam(ctx context.Context, e *exam.ExamItem) error
	BuildPutExamItem(e *exam.ExamItem) (types.TransactWriteItem, error)
}

// QuestionWriter writes question records.
type QuestionWriter interface {
	WriteQuestions(ctx context.Context, examID string, questions []*exam.QuestionItem) (int, error)
	BuildPutQuestionItem(examID string, q *exam.QuestionItem) (types.TransactWriteItem, error)
}

// TransactWriter executes DynamoDB transactions.
type TransactWriter interface {
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// RunConfig selects what a single run does.
type RunConfig struct {
	ExamID string
	// Atomic replaces the partition in one transaction instead of purge-then-write.
	Atomic bool
	// Verify re-reads the partition after a successful run and reports drift.
	Verify bool
	// DryRun logs what would change without touching the store.
	DryRun bool
}

// Pipeline runs the replace sequence against one table.
type Pipeline struct {
	purger         Purger
	examWriter     ExamWriter
	questionWriter QuestionWriter
	transactor     TransactWriter
	verifier       *Verifier
	publisher      seedevent.Publisher
	logger         *slog.Logger
	now            func() time.Time
	newRunID       func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTransactor enables atomic runs.
func WithTransactor(t TransactWriter) Option {
	return func(p *Pipeline) { p.transactor = t }
}

// WithVerifier enables post-run verification.
func WithVerifier(v *Verifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

// WithPublisher sends a notification after each successful run.
func WithPublisher(pub seedevent.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithLogger sets the progress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock overrides the time source used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(newRunID func() string) Option {
	return func(p *Pipeline) { p.newRunID = newRunID }
}

// NewPipeline creates a new Pipeline.
func NewPipeline(purger Purger, examWriter ExamWriter, questionWriter QuestionWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		purger:         purger,
		examWriter:     examWriter,
		questionWriter: questionWriter,
		logger:         slog.New(slog.DiscardHandler),
		now:            func() time.Time { return time.Now().UTC() },
		newRunID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run replaces the stored content of cfg.ExamID with bundle. The bundle is
// validated before anything is deleted. The returned report is never nil and
// shows how far the run progressed; on failure the error is a *RunError.
func (p *Pipeline) Run(ctx context.Context, cfg RunConfig, bundle *content.Bundle) (*Report, error) {
	report := &Report{
		RunID:     p.newRunID(),
		ExamID:    cfg.ExamID,
		Stage:     StageStart,
		DryRun:    cfg.DryRun,
		Atomic:    cfg.Atomic,
		StartedAt: p.now(),
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "SeedPipeline", trace.WithAttributes(
		attribute.String("exam_id", cfg.ExamID),
		attribute.String("run_id", report.RunID),
		attribute.Bool("atomic", cfg.Atomic),
		attribute.Bool("dry_run", cfg.DryRun),
	))
	defer span.End()

	err := p.run(ctx, cfg, bundle, report)
	report.FinishedAt = p.now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "Seed aborted",
			slog.String("run_id", report.RunID),
			slog.String("exam_id", cfg.ExamID),
			slog.String("stage", string(report.FailedStage)),
			slog.Int("deleted", len(report.Deleted)),
			slog.Int("questions_written", report.QuestionsWritten),
			slog.String("error", err.Error()),
		)
		return report, err
	}
	span.SetAttributes(attribute.String("stage", string(report.Stage)))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, cfg RunConfig, bundle *content.Bundle, report *Report) error {
	if cfg.ExamID == "" {
		return p.abort(report, StageStart, ErrMissingExamID)
	}
	if bundle == nil {
		return p.abort(report, StageStart, ErrMissingBundle)
	}
	if err := bundle.Validate(); err != nil {
		return p.abort(report, StageStart, err)
	}
	if cfg.Atomic && p.transactor == nil {
		return p.abort(report, StageStart, ErrNoTransactor)
	}
	if cfg.Verify && p.verifier == nil {
		return p.abort(report, StageStart, ErrNoVerifier)
	}

	examItem, questions := bundle.Items(cfg.ExamID, report.StartedAt)
	if err := exam.ValidateQuestionNumbers(questions); err != nil {
		return p.abort(report, StageStart, err)
	}

	p.logger.InfoContext(ctx, "Seed started",
		slog.String("run_id", report.RunID),
		slog.String("exam_id", cfg.ExamID),
		slog.String("bundle", bundle.Name),
		slog.Int("questions", len(questions)),
	)

	var err error
	switch {
	case cfg.DryRun:
		err = p.dryRun(ctx, report, examItem, questions)
	case cfg.Atomic:
		err = p.runAtomic(ctx, report, examItem, questions)
	default:
		err = p.runSequential(ctx, report, examItem, questions)
	}
	if err != nil || cfg.DryRun {
		return err
	}

	if cfg.Verify {
		p.verify(ctx, report, len(questions))
	}
	p.publish(ctx, report)

	p.logger.InfoContext(ctx, "Seed complete",
		slog.String("run_id", report.RunID),
		slog.String("exam_id", cfg.ExamID),
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("questions_written", report.QuestionsWritten),
	)
	return nil
}

func (p *Pipeline) runSequential(ctx context.Context, report *Report, examItem *exam.ExamItem, questions []*exam.QuestionItem) error {
	examID := examItem.ExamID

	p.enter(ctx, report, StagePurging)
	err := p.traced(ctx, "Purge", func(ctx context.Context) error {
		res, err := p.purger.Purge(ctx, examID)
		if res != nil {
			report.Deleted = res.Deleted
		}
		return err
	})
	if err != nil {
		return p.abort(report, StagePurging, err)
	}
	p.enter(ctx, report, StagePurged)

	p.enter(ctx, report, StageWritingExam)
	err = p.traced(ctx, "WriteExam", func(ctx context.Context) error {
		return p.examWriter.WriteExam(ctx, examItem)
	})
	if err != nil {
		return p.abort(report, StageWritingExam, err)
	}
	report.ExamWritten = true
	p.enter(ctx, report, StageExamWritten)

	p.enter(ctx, report, StageWritingQuestions)
	err = p.traced(ctx, "WriteQuestions", func(ctx context.Context) error {
		n, err := p.questionWriter.WriteQuestions(ctx, examID, questions)
		report.QuestionsWritten = n
		return err
	})
	if err != nil {
		return p.abort(report, StageWritingQuestions, err)
	}
	p.enter(ctx, report, StageDone)
	return nil
}

func (p *Pipeline) dryRun(ctx context.Context, report *Report, examItem *exam.ExamItem, questions []*exam.QuestionItem) error {
	keys, err := p.purger.ListKeys(ctx, examItem.ExamID)
	if err != nil {
		return p.abort(report, StagePurging, err)
	}
	for _, k := range keys {
		p.logger.InfoContext(ctx, "Would delete record", slog.String("pk", k.PK), slog.String("sk", k.SK))
	}
	p.logger.InfoContext(ctx, "Would write exam metadata", slog.String("pk", examItem.PK()), slog.String("sk", examItem.SK()))
	for _, q := range questions {
		p.logger.InfoContext(ctx, "Would write question", slog.Int("question_number", q.QuestionNumber), slog.String("sk", q.SK()))
	}
	p.enter(ctx, report, StageDone)
	return nil
}

func (p *Pipeline) verify(ctx context.Context, report *Report, expected int) {
	err := p.traced(ctx, "Verify", func(ctx context.Context) error {
		v, err := p.verifier.Verify(ctx, report.ExamID, expected)
		if err != nil {
			return err
		}
		report.Verification = v
		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Verification failed",
			slog.String("exam_id", report.ExamID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, d := range report.Verification.Drift {
		p.logger.WarnContext(ctx, "Content drift detected",
			slog.String("exam_id", report.ExamID),
			slog.String("drift", d),
		)
	}
}

// publish is best-effort. Failures are logged only.
func (p *Pipeline) publish(ctx context.Context, report *Report) {
	if p.publisher == nil {
		return
	}
	msg := seedevent.NewReseededMessage(report.ExamID, report.RunID, report.QuestionsWritten, p.now())
	if err := p.publisher.PublishReseeded(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish reseed event",
			slog.String("exam_id", report.ExamID),
			slog.String("run_id", report.RunID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) enter(ctx context.Context, report *Report, stage Stage) {
	report.Stage = stage
	p.logger.DebugContext(ctx, "Stage", slog.String("stage", string(stage)))
}

func (p *Pipeline) abort(report *Report, stage Stage, err error) error {
	report.Stage = StageAborted
	report.FailedStage = stage
	return &RunError{Stage: stage, Err: err}
}

func (p *Pipeline) traced(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
