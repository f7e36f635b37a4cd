// Package queue provides the SQS-based job transport: a producer that wraps
// task payloads in a routing envelope, a long-polling worker that dispatches
// received jobs to registered handlers, and the lifecycle wrapper that gives
// every task uniform logging, metrics, and time budgets.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Producer serializes jobs into a JobEnvelope and sends them to the SQS queue
// that serves the task's worker pool.
//
// Queue routing:
//   - TaskSendNotification -> notification queue
//   - everything else (scans, ping) -> scan queue
type Producer struct {
	client               SQSSender
	scanQueueURL         string
	notificationQueueURL string
	logger               *slog.Logger
}

// NewProducer creates a Producer with the given SQS client and configuration.
// It reads queue URLs from the AWSConfig.
func NewProducer(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *Producer {
	return &Producer{
		client:               client,
		scanQueueURL:         awsCfg.ScanQueueURL,
		notificationQueueURL: awsCfg.NotificationQueueURL,
		logger:               logger,
	}
}

// Enqueue wraps the payload in a JobEnvelope and dispatches it. It returns
// the generated job ID, usable to correlate worker logs with the enqueue
// site.
func (p *Producer) Enqueue(ctx context.Context, task string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal payload for task %s: %w", task, err)
	}

	env := types.JobEnvelope{
		JobID:      uuid.New().String(),
		Task:       task,
		EnqueuedAt: time.Now().UTC(),
		Payload:    raw,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal envelope for task %s: %w", task, err)
	}

	queueURL := p.queueURLForTask(task)
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"task": {
				DataType:    aws.String("String"),
				StringValue: aws.String(task),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return "", fmt.Errorf("queue: failed to send task %s to %s: %w", task, queueURL, err)
	}

	p.logger.InfoContext(ctx, "job enqueued",
		"job_id", env.JobID,
		"task", task,
		"queue_url", queueURL,
	)

	return env.JobID, nil
}

// queueURLForTask selects the queue that serves the task's worker pool.
func (p *Producer) queueURLForTask(task string) string {
	if task == types.TaskSendNotification {
		return p.notificationQueueURL
	}
	return p.scanQueueURL
}
