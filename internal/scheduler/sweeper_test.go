package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// ============================================================
// Mock: SweepDB
// ============================================================

type mockSweepDB struct {
	due         []*types.Monitor
	listErr     error
	updateErr   map[string]error // per-monitor update failures
	rescheduled map[string]time.Time
}

func newMockSweepDB(due ...*types.Monitor) *mockSweepDB {
	return &mockSweepDB{
		due:         due,
		updateErr:   make(map[string]error),
		rescheduled: make(map[string]time.Time),
	}
}

func (m *mockSweepDB) ListDue(_ context.Context, _ time.Time) ([]*types.Monitor, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.due, nil
}

func (m *mockSweepDB) UpdateNextRunAt(_ context.Context, id string, next time.Time) error {
	if err := m.updateErr[id]; err != nil {
		return err
	}
	m.rescheduled[id] = next
	return nil
}

// ============================================================
// Mock: JobEnqueuer
// ============================================================

type enqueueCall struct {
	task    string
	payload any
}

type mockEnqueuer struct {
	calls  []enqueueCall
	errFor map[string]error // keyed by monitor ID for ScanJob payloads
}

func newMockEnqueuer() *mockEnqueuer {
	return &mockEnqueuer{errFor: make(map[string]error)}
}

func (m *mockEnqueuer) Enqueue(_ context.Context, task string, payload any) (string, error) {
	if job, ok := payload.(types.ScanJob); ok {
		if err := m.errFor[job.MonitorID]; err != nil {
			return "", err
		}
	}
	m.calls = append(m.calls, enqueueCall{task: task, payload: payload})
	return "job_test", nil
}

// ============================================================
// Helpers
// ============================================================

var sweepNow = time.Date(2023, time.June, 15, 10, 2, 0, 0, time.UTC)

func dueMonitor(id string, cadence types.Cadence, nextRunAt time.Time) *types.Monitor {
	return &types.Monitor{
		ID:        id,
		UserID:    "user_1",
		QueryText: "acme breach",
		Cadence:   cadence,
		Active:    true,
		NextRunAt: nextRunAt,
	}
}

func newTestSweeper(db *mockSweepDB, q *mockEnqueuer) *Sweeper {
	return NewSweeper(db, q, testLogger(), nil).WithClock(schedule.FixedClock{Instant: sweepNow})
}

// ============================================================
// Tests
// ============================================================

func TestSweep_EnqueuesAndReschedulesDueMonitors(t *testing.T) {
	nextRun := sweepNow.Add(-2 * time.Minute)
	db := newMockSweepDB(dueMonitor("mon_1", types.CadenceDaily, nextRun))
	q := newMockEnqueuer()

	summary, err := newTestSweeper(db, q).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned unexpected error: %v", err)
	}

	if summary.Found != 1 || summary.Enqueued != 1 {
		t.Fatalf("expected summary {1 1}, got %+v", summary)
	}
	if len(q.calls) != 1 {
		t.Fatalf("expected 1 enqueue, got %d", len(q.calls))
	}
	if q.calls[0].task != types.TaskScanMonitor {
		t.Errorf("expected task %q, got %q", types.TaskScanMonitor, q.calls[0].task)
	}

	// The reschedule steps from the monitor's own next_run_at, keeping the
	// 10:00 grid even though the sweep ran at 10:02.
	want := nextRun.AddDate(0, 0, 1)
	got, ok := db.rescheduled["mon_1"]
	if !ok {
		t.Fatal("expected monitor to be rescheduled")
	}
	if !got.Equal(want) {
		t.Errorf("expected next run %s, got %s", want, got)
	}
}

func TestSweep_JobCarriesMonitorSnapshot(t *testing.T) {
	m := dueMonitor("mon_1", types.CadenceWeekly, sweepNow.Add(-time.Minute))
	db := newMockSweepDB(m)
	q := newMockEnqueuer()

	if _, err := newTestSweeper(db, q).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep returned unexpected error: %v", err)
	}

	job, ok := q.calls[0].payload.(types.ScanJob)
	if !ok {
		t.Fatalf("expected a ScanJob payload, got %T", q.calls[0].payload)
	}
	if job.MonitorID != "mon_1" {
		t.Errorf("expected monitor ID mon_1, got %q", job.MonitorID)
	}
	if job.Monitor == nil || job.Monitor.QueryText != "acme breach" {
		t.Errorf("expected embedded monitor snapshot, got %+v", job.Monitor)
	}

	// The snapshot must survive JSON transport intact.
	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("failed to marshal job: %v", err)
	}
	var decoded types.ScanJob
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("failed to unmarshal job: %v", err)
	}
	if decoded.Monitor.Cadence != types.CadenceWeekly {
		t.Errorf("expected cadence weekly after round trip, got %q", decoded.Monitor.Cadence)
	}
}

func TestSweep_FailureOnOneMonitorDoesNotStopOthers(t *testing.T) {
	db := newMockSweepDB(
		dueMonitor("mon_fail", types.CadenceDaily, sweepNow.Add(-time.Minute)),
		dueMonitor("mon_ok", types.CadenceDaily, sweepNow.Add(-time.Minute)),
	)
	q := newMockEnqueuer()
	q.errFor["mon_fail"] = errors.New("sqs unavailable")

	summary, err := newTestSweeper(db, q).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned unexpected error: %v", err)
	}

	if summary.Found != 2 {
		t.Errorf("expected 2 found, got %d", summary.Found)
	}
	if summary.Enqueued != 1 {
		t.Errorf("expected 1 enqueued, got %d", summary.Enqueued)
	}

	// The failed monitor keeps its next_run_at so the next sweep retries it.
	if _, rescheduled := db.rescheduled["mon_fail"]; rescheduled {
		t.Error("monitor with failed enqueue must not be rescheduled")
	}
	if _, rescheduled := db.rescheduled["mon_ok"]; !rescheduled {
		t.Error("healthy monitor must be rescheduled")
	}
}

func TestSweep_RescheduleFailureIsIsolated(t *testing.T) {
	db := newMockSweepDB(
		dueMonitor("mon_1", types.CadenceDaily, sweepNow.Add(-time.Minute)),
		dueMonitor("mon_2", types.CadenceDaily, sweepNow.Add(-time.Minute)),
	)
	db.updateErr["mon_1"] = errors.New("connection refused")
	q := newMockEnqueuer()

	summary, err := newTestSweeper(db, q).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned unexpected error: %v", err)
	}
	if summary.Enqueued != 1 {
		t.Errorf("expected 1 enqueued, got %d", summary.Enqueued)
	}
}

func TestSweep_LateSweepCatchesUpPastOverdueRuns(t *testing.T) {
	// Monitor overdue by three days: next run lands strictly in the future,
	// skipping the missed occurrences.
	nextRun := sweepNow.AddDate(0, 0, -3).Add(-time.Minute)
	db := newMockSweepDB(dueMonitor("mon_1", types.CadenceDaily, nextRun))
	q := newMockEnqueuer()

	if _, err := newTestSweeper(db, q).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep returned unexpected error: %v", err)
	}

	got := db.rescheduled["mon_1"]
	if !got.After(sweepNow) {
		t.Errorf("expected next run after %s, got %s", sweepNow, got)
	}
	if got.Sub(sweepNow) > 24*time.Hour {
		t.Errorf("expected next run within one step of now, got %s", got)
	}
	if len(q.calls) != 1 {
		t.Errorf("overdue monitor gets exactly one scan job, got %d", len(q.calls))
	}
}

func TestSweep_ListFailurePropagates(t *testing.T) {
	db := newMockSweepDB()
	db.listErr = errors.New("connection refused")
	q := newMockEnqueuer()

	_, err := newTestSweeper(db, q).Sweep(context.Background())
	if err == nil {
		t.Fatal("expected an error when the due listing fails")
	}
	if len(q.calls) != 0 {
		t.Error("no jobs may be enqueued when the listing fails")
	}
}

func TestSweep_NoDueMonitors(t *testing.T) {
	db := newMockSweepDB()
	q := newMockEnqueuer()

	summary, err := newTestSweeper(db, q).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned unexpected error: %v", err)
	}
	if summary.Found != 0 || summary.Enqueued != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}
