package queue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// recordingMetrics captures RecordTask calls.
type recordingMetrics struct {
	task     string
	success  bool
	duration time.Duration
	calls    int
}

func (m *recordingMetrics) RecordTask(_ context.Context, task string, success bool, duration time.Duration) {
	m.task = task
	m.success = success
	m.duration = duration
	m.calls++
}

func testEnvelope() types.JobEnvelope {
	return types.JobEnvelope{JobID: "job_1", Task: types.TaskScanMonitor}
}

func TestWithLifecycle_Success(t *testing.T) {
	metrics := &recordingMetrics{}
	h := WithLifecycle(types.TaskScanMonitor, Budget{Soft: time.Second, Hard: 2 * time.Second},
		slog.Default(), metrics,
		func(context.Context, types.JobEnvelope) error { return nil },
	)

	if err := h(context.Background(), testEnvelope()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if metrics.calls != 1 {
		t.Fatalf("expected 1 metrics call, got %d", metrics.calls)
	}
	if !metrics.success {
		t.Error("expected success recorded")
	}
	if metrics.task != types.TaskScanMonitor {
		t.Errorf("expected task %q recorded, got %q", types.TaskScanMonitor, metrics.task)
	}
}

func TestWithLifecycle_HandlerErrorPropagates(t *testing.T) {
	metrics := &recordingMetrics{}
	sentinel := errors.New("scan failed")
	h := WithLifecycle(types.TaskScanMonitor, Budget{Soft: time.Second, Hard: 2 * time.Second},
		slog.Default(), metrics,
		func(context.Context, types.JobEnvelope) error { return sentinel },
	)

	err := h(context.Background(), testEnvelope())
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if metrics.success {
		t.Error("expected failure recorded")
	}
}

func TestWithLifecycle_SoftLimitDeliveredAsDeadline(t *testing.T) {
	h := WithLifecycle(types.TaskScanMonitor, Budget{Soft: 10 * time.Millisecond, Hard: 5 * time.Second},
		slog.Default(), nil,
		func(ctx context.Context, _ types.JobEnvelope) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)

	err := h(context.Background(), testEnvelope())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded from soft limit, got %v", err)
	}
}

func TestWithLifecycle_HardLimitAbandonsJob(t *testing.T) {
	metrics := &recordingMetrics{}
	blocked := make(chan struct{})
	defer close(blocked)

	// The handler ignores its context, simulating a stuck task.
	h := WithLifecycle(types.TaskScanMonitor, Budget{Soft: 10 * time.Millisecond, Hard: 50 * time.Millisecond},
		slog.Default(), metrics,
		func(context.Context, types.JobEnvelope) error {
			<-blocked
			return nil
		},
	)

	err := h(context.Background(), testEnvelope())
	if err == nil {
		t.Fatal("expected an error when the hard limit expires")
	}
	if !strings.Contains(err.Error(), "hard time limit") {
		t.Errorf("expected hard time limit error, got %v", err)
	}
	if metrics.success {
		t.Error("expected failure recorded for abandoned job")
	}
}
