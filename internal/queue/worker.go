package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// SQSReceiver abstracts the SQS receive/delete operations for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes a single job. A nil return acknowledges the message;
// an error leaves it on the queue for redelivery after the visibility
// timeout.
type Handler func(ctx context.Context, job types.JobEnvelope) error

// Worker long-polls a single SQS queue and dispatches each received job to
// the handler registered for its task name.
//
// Acknowledgement semantics:
//   - handler success: message deleted
//   - handler failure: message left for redelivery
//   - malformed envelope or unknown task: message deleted and logged, since
//     redelivery can never succeed
type Worker struct {
	client   SQSReceiver
	queueURL string
	handlers map[string]Handler
	logger   *slog.Logger
	cfg      config.WorkerConfig
}

// NewWorker creates a Worker bound to one queue URL.
func NewWorker(client SQSReceiver, queueURL string, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	return &Worker{
		client:   client,
		queueURL: queueURL,
		handlers: make(map[string]Handler),
		logger:   logger.With("queue_url", queueURL),
		cfg:      cfg,
	}
}

// Register binds a handler to a task name. Registering the same task twice
// replaces the earlier handler.
func (w *Worker) Register(task string, h Handler) {
	w.handlers[task] = h
}

// Run polls the queue until ctx is cancelled. Receive errors are logged and
// retried after a short backoff rather than terminating the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "worker started", "tasks", w.taskNames())

	for {
		if err := ctx.Err(); err != nil {
			w.logger.InfoContext(ctx, "worker stopped")
			return err
		}

		out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(w.queueURL),
			MaxNumberOfMessages:   w.cfg.MaxMessages,
			WaitTimeSeconds:       w.cfg.PollWaitSeconds,
			VisibilityTimeout:     w.cfg.VisibilityTimeout,
			MessageAttributeNames: []string{"task"},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				w.logger.InfoContext(ctx, "worker stopped")
				return ctx.Err()
			}
			w.logger.ErrorContext(ctx, "receive failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, msg := range out.Messages {
			w.process(ctx, aws.ToString(msg.Body), aws.ToString(msg.ReceiptHandle), aws.ToString(msg.MessageId))
		}
	}
}

// process dispatches one raw message. Acknowledgement follows the semantics
// documented on Worker.
func (w *Worker) process(ctx context.Context, body, receiptHandle, messageID string) {
	var env types.JobEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		w.logger.ErrorContext(ctx, "discarding malformed job envelope",
			"message_id", messageID,
			"error", err.Error(),
		)
		w.ack(ctx, receiptHandle, messageID)
		return
	}

	handler, ok := w.handlers[env.Task]
	if !ok {
		w.logger.ErrorContext(ctx, "discarding job with unknown task",
			"message_id", messageID,
			"job_id", env.JobID,
			"task", env.Task,
		)
		w.ack(ctx, receiptHandle, messageID)
		return
	}

	if err := handler(ctx, env); err != nil {
		// Leave the message for redelivery.
		w.logger.ErrorContext(ctx, "job failed, leaving for redelivery",
			"message_id", messageID,
			"job_id", env.JobID,
			"task", env.Task,
			"error", err.Error(),
		)
		return
	}

	w.ack(ctx, receiptHandle, messageID)
}

// ack deletes a message from the queue. A delete failure only means the
// message will be redelivered, so it is logged and not propagated.
func (w *Worker) ack(ctx context.Context, receiptHandle, messageID string) {
	_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to delete message",
			"message_id", messageID,
			"error", err.Error(),
		)
	}
}

func (w *Worker) taskNames() []string {
	names := make([]string, 0, len(w.handlers))
	for name := range w.handlers {
		names = append(names, name)
	}
	return names
}
