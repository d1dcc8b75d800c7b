// Package main implements the exam-seed command, which replaces the stored
// content of one exam with an embedded content bundle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/jarrod-lowe/exam-seed/internal/config"
	"github.com/jarrod-lowe/exam-seed/internal/content"
	"github.com/jarrod-lowe/exam-seed/internal/exam"
	"github.com/jarrod-lowe/exam-seed/internal/purge"
	"github.com/jarrod-lowe/exam-seed/internal/seed"
	"github.com/jarrod-lowe/exam-seed/internal/seedevent"
)

// clients are the AWS clients a run needs. SQS is nil when no events queue is configured.
type clients struct {
	dynamo dbclient.DynamoDBClient
	sqs    seedevent.SQSSender
}

// clientFactory builds AWS clients for the resolved configuration.
type clientFactory func(ctx context.Context, cfg *config.Config) (*clients, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, newAWSClients)
	stop()
	os.Exit(code)
}

// run parses flags, executes one seed run and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer, newClients clientFactory) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdout, "exam-seed: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("exam-seed", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&cfg.TableName, "table", cfg.TableName, "DynamoDB table name (env "+config.EnvTableName+")")
	fs.StringVar(&cfg.ExamID, "exam", cfg.ExamID, "exam id to replace (env "+config.EnvExamID+")")
	fs.StringVar(&cfg.Bundle, "bundle", cfg.Bundle, "embedded content bundle (env "+config.EnvBundle+")")
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "DynamoDB endpoint override (env "+config.EnvEndpoint+")")
	fs.BoolVar(&cfg.Atomic, "atomic", cfg.Atomic, "replace the partition in a single transaction")
	fs.BoolVar(&cfg.Verify, "verify", cfg.Verify, "re-read the partition after the run and report drift")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	dryRun := fs.Bool("dry-run", false, "log what would change without writing")
	list := fs.Bool("list", false, "list embedded bundles and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *list {
		names, err := content.Names()
		if err != nil {
			fmt.Fprintf(stdout, "exam-seed: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, strings.Join(names, "\n"))
		return 0
	}

	logger := newLogger(stdout, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		return 2
	}

	bundle, err := content.Load(cfg.Bundle)
	if err != nil {
		logger.Error("Failed to load bundle", slog.String("bundle", cfg.Bundle), slog.String("error", err.Error()))
		return 1
	}

	c, err := newClients(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize AWS clients", slog.String("error", err.Error()))
		return 1
	}

	pipeline := newPipeline(cfg, c, logger)
	report, err := pipeline.Run(ctx, seed.RunConfig{
		ExamID: cfg.ExamID,
		Atomic: cfg.Atomic,
		Verify: cfg.Verify,
		DryRun: *dryRun,
	}, bundle)
	printSummary(stdout, report)
	if err != nil {
		return 1
	}
	return 0
}

func newPipeline(cfg *config.Config, c *clients, logger *slog.Logger) *seed.Pipeline {
	writer := exam.NewWriter(c.dynamo, cfg.TableName, logger)
	opts := []seed.Option{
		seed.WithLogger(logger),
		seed.WithTransactor(c.dynamo),
		seed.WithVerifier(seed.NewVerifier(c.dynamo, cfg.TableName)),
	}
	if c.sqs != nil && cfg.EventsQueueURL != "" {
		opts = append(opts, seed.WithPublisher(seedevent.NewSQSPublisher(c.sqs, cfg.EventsQueueURL)))
	}
	return seed.NewPipeline(
		purge.NewPurger(c.dynamo, cfg.TableName, purge.WithLogger(logger)),
		writer,
		writer,
		opts...,
	)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func printSummary(w io.Writer, r *seed.Report) {
	status := "ok"
	if r.Stage == seed.StageAborted {
		status = "aborted in " + string(r.FailedStage)
	}
	if r.DryRun {
		status = "dry run"
	}
	fmt.Fprintf(w, "exam %s: %s (run %s, deleted %d, exam written %t, questions written %d)\n",
		r.ExamID, status, r.RunID, len(r.Deleted), r.ExamWritten, r.QuestionsWritten)
	if v := r.Verification; v != nil {
		fmt.Fprintf(w, "verified: %d exam record(s), %d question record(s), %d drift\n",
			v.ExamRecords, v.QuestionRecords, len(v.Drift))
	}
}

func newAWSClients(ctx context.Context, cfg *config.Config) (*clients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	c := &clients{}
	if cfg.Endpoint != "" {
		c.dynamo = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		c.dynamo = dbclient.NewClient(awsCfg)
	}
	if cfg.EventsQueueURL != "" {
		c.sqs = sqs.NewFromConfig(awsCfg)
	}
	return c, nil
}
