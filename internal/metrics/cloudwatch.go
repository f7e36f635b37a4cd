// Package metrics publishes service telemetry to CloudWatch. Publishing is
// best effort: a failed PutMetricData is logged and never fails the caller.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Emitter publishes worker and scheduler metrics.
//
// Metrics emitted:
//   - TaskOutcome: Dims {Task, Result} -- on every worker task completion
//   - TaskDuration: Dims {Task} -- wall time of the task handler
//   - SweepMonitorsFound / SweepMonitorsEnqueued -- per scheduler sweep
//   - SweepDuration -- wall time of one sweep
type Emitter struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewEmitter creates an Emitter publishing to the given namespace.
func NewEmitter(client CloudWatchClient, namespace string, logger *slog.Logger) *Emitter {
	return &Emitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordTask emits the outcome and duration of one worker task.
func (e *Emitter) RecordTask(ctx context.Context, task string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}

	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String("TaskOutcome"),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String("Task"), Value: aws.String(task)},
				{Name: aws.String("Result"), Value: aws.String(result)},
			},
		},
		{
			MetricName: aws.String("TaskDuration"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String("Task"), Value: aws.String(task)},
			},
		},
	})
}

// RecordSweep emits the counters for one scheduler sweep.
func (e *Emitter) RecordSweep(ctx context.Context, found, enqueued int, duration time.Duration) {
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String("SweepMonitorsFound"),
			Value:      aws.Float64(float64(found)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String("SweepMonitorsEnqueued"),
			Value:      aws.Float64(float64(enqueued)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String("SweepDuration"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
	})
}

func (e *Emitter) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(e.namespace),
		MetricData: data,
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish metrics",
			"error", err.Error(),
			"namespace", e.namespace,
		)
	}
}
