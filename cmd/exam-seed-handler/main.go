// Package main implements the exam-seed Lambda handler.
// Deploy hooks invoke it to replace the content of one exam.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	seedconfig "github.com/jarrod-lowe/exam-seed/internal/config"
	"github.com/jarrod-lowe/exam-seed/internal/content"
	"github.com/jarrod-lowe/exam-seed/internal/seed"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// ErrMissingExamID is returned when neither the event nor the environment names an exam.
var ErrMissingExamID = errors.New("examId is required")

// SeedEvent is the invocation payload. Empty fields fall back to the environment.
type SeedEvent struct {
	ExamID string `json:"examId"`
	Bundle string `json:"bundle"`
	Atomic *bool  `json:"atomic,omitempty"`
	DryRun bool   `json:"dryRun"`
}

// SeedResponse summarises a completed run.
type SeedResponse struct {
	RunID            string   `json:"runId"`
	ExamID           string   `json:"examId"`
	Stage            string   `json:"stage"`
	Deleted          int      `json:"deleted"`
	QuestionsWritten int      `json:"questionsWritten"`
	Drift            []string `json:"drift,omitempty"`
}

// Runner executes a seed run.
type Runner interface {
	Run(ctx context.Context, cfg seed.RunConfig, bundle *content.Bundle) (*seed.Report, error)
}

// handler implements the exam-seed Lambda logic.
type handler struct {
	runner Runner
	cfg    *seedconfig.Config
}

// newHandler creates a new handler.
func newHandler(runner Runner, cfg *seedconfig.Config) *handler {
	return &handler{runner: runner, cfg: cfg}
}

// handle runs the pipeline for one event.
func (h *handler) handle(ctx context.Context, event SeedEvent) (SeedResponse, error) {
	tracer := otel.Tracer("exam-seed-handler")
	ctx, span := tracer.Start(ctx, "ExamSeedHandler")
	defer span.End()

	examID := event.ExamID
	if examID == "" {
		examID = h.cfg.ExamID
	}
	if examID == "" {
		return SeedResponse{}, ErrMissingExamID
	}
	bundleName := event.Bundle
	if bundleName == "" {
		bundleName = h.cfg.Bundle
	}
	atomic := h.cfg.Atomic
	if event.Atomic != nil {
		atomic = *event.Atomic
	}

	bundle, err := content.Load(bundleName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load bundle",
			slog.String("bundle", bundleName),
			slog.String("error", err.Error()),
		)
		return SeedResponse{}, err
	}

	report, err := h.runner.Run(ctx, seed.RunConfig{
		ExamID: examID,
		Atomic: atomic,
		Verify: h.cfg.Verify,
		DryRun: event.DryRun,
	}, bundle)
	if err != nil {
		return SeedResponse{}, err
	}

	resp := SeedResponse{
		RunID:            report.RunID,
		ExamID:           report.ExamID,
		Stage:            string(report.Stage),
		Deleted:          len(report.Deleted),
		QuestionsWritten: report.QuestionsWritten,
	}
	if report.Verification != nil {
		resp.Drift = report.Verification.Drift
	}
	logger.InfoContext(ctx, "Exam seeded",
		slog.String("exam_id", resp.ExamID),
		slog.String("run_id", resp.RunID),
		slog.Int("deleted", resp.Deleted),
		slog.Int("questions_written", resp.QuestionsWritten),
	)
	return resp, nil
}

func main() {
	ctx := context.Background()

	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", slog.String("error", err.Error()))
		panic(err)
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		xray.Propagator{},
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg, err := seedconfig.FromEnv()
	if err != nil {
		logger.Error("FATAL: Invalid configuration", slog.String("error", err.Error()))
		panic(err)
	}
	if cfg.TableName == "" {
		logger.Error("FATAL: Invalid configuration", slog.String("error", seedconfig.ErrMissingTableName.Error()))
		panic(seedconfig.ErrMissingTableName)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}

	// Instrument AWS SDK clients with OTel tracing
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	dynamoClient := dbclient.NewClient(awsCfg)
	var sqsClient *sqs.Client
	if cfg.EventsQueueURL != "" {
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	h := newHandler(buildPipeline(cfg, dynamoClient, sqsClient), cfg)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
