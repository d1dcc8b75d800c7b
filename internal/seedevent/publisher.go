// Package seedevent publishes notifications about completed reseed runs via SQS.
package seedevent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// EventTypeReseeded is sent after an exam's content has been fully replaced.
const EventTypeReseeded = "exam.reseeded"

// Publisher publishes reseed notifications to an async queue.
type Publisher interface {
	PublishReseeded(ctx context.Context, msg Message) error
}

// Message is the SQS message body for a reseed notification.
type Message struct {
	EventType     string `json:"eventType"`
	OccurredAt    string `json:"occurredAt"`
	ExamID        string `json:"examId"`
	RunID         string `json:"runId"`
	QuestionCount int    `json:"questionCount"`
}

// NewReseededMessage builds the notification for a completed run.
func NewReseededMessage(examID, runID string, questionCount int, at time.Time) Message {
	return Message{
		EventType:     EventTypeReseeded,
		OccurredAt:    at.UTC().Format(time.RFC3339),
		ExamID:        examID,
		RunID:         runID,
		QuestionCount: questionCount,
	}
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes reseed notifications to an SQS queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
	}
}

// PublishReseeded sends a reseed notification to SQS. The event type is sent
// as a message attribute so consumers can filter without parsing the body.
func (p *SQSPublisher) PublishReseeded(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	bodyStr := string(body)
	eventType := msg.EventType
	dataType := "String"
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &bodyStr,
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {DataType: &dataType, StringValue: &eventType},
		},
	})
	return err
}
