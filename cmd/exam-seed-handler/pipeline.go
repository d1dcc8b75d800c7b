package main

import (
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"

	seedconfig "github.com/jarrod-lowe/exam-seed/internal/config"
	"github.com/jarrod-lowe/exam-seed/internal/exam"
	"github.com/jarrod-lowe/exam-seed/internal/purge"
	"github.com/jarrod-lowe/exam-seed/internal/seed"
	"github.com/jarrod-lowe/exam-seed/internal/seedevent"
)

func buildPipeline(cfg *seedconfig.Config, client dbclient.DynamoDBClient, sqsClient *sqs.Client) *seed.Pipeline {
	writer := exam.NewWriter(client, cfg.TableName, logger)
	opts := []seed.Option{
		seed.WithLogger(logger),
		seed.WithTransactor(client),
		seed.WithVerifier(seed.NewVerifier(client, cfg.TableName)),
	}
	if sqsClient != nil {
		opts = append(opts, seed.WithPublisher(seedevent.NewSQSPublisher(sqsClient, cfg.EventsQueueURL)))
	}
	return seed.NewPipeline(purge.NewPurger(client, cfg.TableName, purge.WithLogger(logger)), writer, writer, opts...)
}
