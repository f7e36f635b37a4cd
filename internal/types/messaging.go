package types

import (
	"encoding/json"
	"time"
)

// Task names registered with the queue worker. The producer routes messages
// and the worker dispatches handlers by these names.
const (
	TaskScanMonitor      = "run_monitor_scan"
	TaskSendNotification = "send_report_notification"
	TaskPing             = "ping"
)

// JobEnvelope is the transport envelope for every queued job. The queue
// delivery contract is at-least-once: a worker crash after side effects but
// before acknowledgment redelivers the same envelope (same JobID) after the
// visibility timeout.
type JobEnvelope struct {
	JobID      string          `json:"job_id"`
	Task       string          `json:"task"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// ScanJob instructs a worker to execute the scan pipeline for one monitor.
// Monitor carries the snapshot already fetched by the scheduler sweep to
// avoid a redundant lookup; it may be nil (e.g. immediate API triggers),
// in which case the executor resolves the monitor by ID.
type ScanJob struct {
	MonitorID string   `json:"monitor_id"`
	Monitor   *Monitor `json:"monitor,omitempty"`
}

// NotificationJob instructs a worker to notify a report's owner. Enqueued
// strictly after the report row exists, exactly once per successful report
// creation.
type NotificationJob struct {
	ReportID string `json:"report_id"`
}
