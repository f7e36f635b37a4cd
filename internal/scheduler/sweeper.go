// Package scheduler implements the periodic services run by the scheduler
// process: the due-monitor sweep that feeds the scan queue, and the retention
// cleanup that prunes old reports.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// SweepDB defines the database operations needed by the Sweeper.
type SweepDB interface {
	// ListDue returns active monitors whose next_run_at has arrived.
	//
	// SQL: SELECT ... FROM monitors WHERE active = TRUE AND next_run_at <= $1
	ListDue(ctx context.Context, now time.Time) ([]*types.Monitor, error)

	// UpdateNextRunAt reschedules a single monitor. It must write only
	// next_run_at (and updated_at); no other monitor field is touched.
	UpdateNextRunAt(ctx context.Context, id string, next time.Time) error
}

// JobEnqueuer dispatches a task payload to the job queue and returns the
// generated job ID.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, task string, payload any) (string, error)
}

// SweepMetrics receives per-sweep telemetry. A nil SweepMetrics disables
// emission.
type SweepMetrics interface {
	RecordSweep(ctx context.Context, found, enqueued int, duration time.Duration)
}

// SweepSummary reports the outcome of one sweep pass.
type SweepSummary struct {
	Found    int
	Enqueued int
}

// Sweeper finds due monitors, enqueues a scan job for each, and advances
// their next_run_at.
//
// Monitors are processed independently: a failure on one (enqueue or
// reschedule) is logged and does not stop the sweep. A monitor whose enqueue
// fails keeps its next_run_at, so the next sweep retries it.
type Sweeper struct {
	db      SweepDB
	queue   JobEnqueuer
	logger  *slog.Logger
	metrics SweepMetrics
	clock   schedule.Clock
}

// NewSweeper creates a Sweeper. metrics may be nil.
func NewSweeper(db SweepDB, queue JobEnqueuer, logger *slog.Logger, metrics SweepMetrics) *Sweeper {
	return &Sweeper{
		db:      db,
		queue:   queue,
		logger:  logger,
		metrics: metrics,
		clock:   schedule.RealClock{},
	}
}

// WithClock substitutes the time source, for tests.
func (s *Sweeper) WithClock(clock schedule.Clock) *Sweeper {
	s.clock = clock
	return s
}

// Sweep runs one pass over the due monitors. The returned error is non-nil
// only when the due listing itself fails; per-monitor failures are reflected
// in the summary instead.
func (s *Sweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	start := s.clock.Now()

	monitors, err := s.db.ListDue(ctx, start)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep failed to list due monitors", "error", err.Error())
		return SweepSummary{}, err
	}

	summary := SweepSummary{Found: len(monitors)}
	for _, m := range monitors {
		if err := s.dispatch(ctx, m, start); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed for monitor",
				"monitor_id", m.ID,
				"error", err.Error(),
			)
			continue
		}
		summary.Enqueued++
	}

	duration := time.Since(start)
	s.logger.InfoContext(ctx, "sweep completed",
		"found", summary.Found,
		"enqueued", summary.Enqueued,
		"duration_ms", duration.Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, summary.Found, summary.Enqueued, duration)
	}

	return summary, nil
}

// dispatch enqueues the scan job for one monitor and advances its schedule.
//
// The new next_run_at is derived from the monitor's current next_run_at, not
// from the sweep time, so a monitor's schedule grid is preserved even when a
// sweep runs late. The catch-up in NextRun guarantees the result is strictly
// in the future.
func (s *Sweeper) dispatch(ctx context.Context, m *types.Monitor, now time.Time) error {
	jobID, err := s.queue.Enqueue(ctx, types.TaskScanMonitor, types.ScanJob{
		MonitorID: m.ID,
		Monitor:   m,
	})
	if err != nil {
		return err
	}

	next, err := schedule.NextRun(m.Cadence, m.NextRunAt, now)
	if err != nil {
		return err
	}
	if err := s.db.UpdateNextRunAt(ctx, m.ID, next); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "monitor scan enqueued",
		"monitor_id", m.ID,
		"job_id", jobID,
		"next_run_at", next,
	)
	return nil
}
