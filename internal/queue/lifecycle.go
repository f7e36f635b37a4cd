package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Budget holds the two time limits applied to every task execution.
//
// The soft limit is delivered to the handler as a context deadline, giving it
// a chance to wind down cleanly. The hard limit is enforced from outside: if
// the handler has not returned by then, the job is abandoned and reported as
// failed. Hard must exceed soft.
type Budget struct {
	Soft time.Duration
	Hard time.Duration
}

// TaskMetrics receives per-task outcome telemetry. Implemented by the
// CloudWatch emitter; a nil TaskMetrics disables emission.
type TaskMetrics interface {
	RecordTask(ctx context.Context, task string, success bool, duration time.Duration)
}

// WithLifecycle wraps a Handler with the uniform task execution protocol:
//
//  1. log "task started" with the job ID and payload size
//  2. run the handler under the soft-limit context deadline
//  3. on return, log "task succeeded" or "task failed" with the duration
//  4. if the hard limit expires first, abandon the job and report failure
//
// An abandoned handler keeps running on its goroutine until it notices the
// cancelled context, but its eventual result is discarded.
func WithLifecycle(task string, budget Budget, logger *slog.Logger, metrics TaskMetrics, h Handler) Handler {
	return func(ctx context.Context, job types.JobEnvelope) error {
		start := time.Now()
		log := logger.With("task", task, "job_id", job.JobID)
		log.InfoContext(ctx, "task started", "payload_bytes", len(job.Payload))

		softCtx, cancel := context.WithTimeout(ctx, budget.Soft)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- h(softCtx, job)
		}()

		var err error
		select {
		case err = <-done:
		case <-time.After(budget.Hard):
			err = fmt.Errorf("task %s exceeded hard time limit of %s", task, budget.Hard)
		}

		duration := time.Since(start)
		success := err == nil

		if success {
			log.InfoContext(ctx, "task succeeded", "duration_ms", duration.Milliseconds())
		} else {
			log.ErrorContext(ctx, "task failed",
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		}

		if metrics != nil {
			metrics.RecordTask(ctx, task, success, duration)
		}

		return err
	}
}
