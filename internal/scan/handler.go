package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// SummaryLine is the one-line report summary used in the artifact document
// and in notification emails.
func SummaryLine(query string, itemCount int) string {
	noun := "results"
	if itemCount == 1 {
		noun = "result"
	}
	return fmt.Sprintf("%d %s for %q", itemCount, noun, query)
}

// NewHandler adapts the Executor to the queue handler signature. A payload
// that does not decode as a ScanJob is permanent, so it is logged and acked.
func NewHandler(e *Executor, logger *slog.Logger) func(ctx context.Context, job types.JobEnvelope) error {
	return func(ctx context.Context, job types.JobEnvelope) error {
		var scanJob types.ScanJob
		if err := json.Unmarshal(job.Payload, &scanJob); err != nil {
			logger.ErrorContext(ctx, "discarding scan job with malformed payload",
				"job_id", job.JobID,
				"error", err.Error(),
			)
			return nil
		}

		_, err := e.Execute(ctx, scanJob)
		return err
	}
}
