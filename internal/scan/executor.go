package scan

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/search"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Outcome classifies a completed scan execution.
type Outcome string

const (
	// OutcomeCompleted means a report was created and a notification enqueued.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSkipped means the job referenced a monitor that no longer
	// warrants a scan (deleted, deactivated, or empty query). Skips succeed
	// so the message is acked and never redelivered.
	OutcomeSkipped Outcome = "skipped"
)

// MonitorSource resolves a monitor when the job carries no snapshot.
type MonitorSource interface {
	GetByID(ctx context.Context, id string) (*types.Monitor, error)
}

// SearchRecorder persists search rows.
type SearchRecorder interface {
	Create(ctx context.Context, s *types.Search) error
}

// ReportRecorder persists report rows.
type ReportRecorder interface {
	Create(ctx context.Context, r *types.Report) error
}

// ArtifactUploader stores the full result listing and returns its URL.
type ArtifactUploader interface {
	Enabled() bool
	Upload(ctx context.Context, artifactID string, payload []byte) (string, error)
}

// NotificationEnqueuer hands the finished report to the notification queue.
type NotificationEnqueuer interface {
	Enqueue(ctx context.Context, task string, payload any) (string, error)
}

// Executor runs one monitor scan end to end.
type Executor struct {
	monitors MonitorSource
	searches SearchRecorder
	reports  ReportRecorder
	provider search.Provider
	store    ArtifactUploader
	queue    NotificationEnqueuer
	logger   *slog.Logger
}

// NewExecutor wires the scan pipeline.
func NewExecutor(
	monitors MonitorSource,
	searches SearchRecorder,
	reports ReportRecorder,
	provider search.Provider,
	store ArtifactUploader,
	queue NotificationEnqueuer,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		monitors: monitors,
		searches: searches,
		reports:  reports,
		provider: provider,
		store:    store,
		queue:    queue,
		logger:   logger,
	}
}

// Execute runs the scan for one job.
//
// A nil error means the job is done and must be acked, which covers both
// completed scans and skips. Errors are retryable conditions (provider or
// database failures); the queue redelivers and a later attempt may create a
// duplicate search/report pair, which is accepted.
func (e *Executor) Execute(ctx context.Context, job types.ScanJob) (Outcome, error) {
	m, err := e.resolveMonitor(ctx, job)
	if err != nil {
		return "", err
	}
	if m == nil {
		e.logger.WarnContext(ctx, "scan skipped, stale monitor reference", "monitor_id", job.MonitorID)
		return OutcomeSkipped, nil
	}
	if !m.Active {
		e.logger.InfoContext(ctx, "scan skipped, monitor inactive", "monitor_id", m.ID)
		return OutcomeSkipped, nil
	}
	if strings.TrimSpace(m.QueryText) == "" {
		e.logger.WarnContext(ctx, "scan skipped, empty query", "monitor_id", m.ID)
		return OutcomeSkipped, nil
	}

	items, err := e.provider.Search(ctx, m.QueryText)
	if err != nil {
		// Record the failed attempt; the row is diagnostic, so its own
		// failure only logs.
		e.recordSearch(ctx, m, types.SearchStatusFailed)
		return "", err
	}

	ranked := Rank(items)

	artifactURL := e.uploadArtifact(ctx, m, ranked)

	srch := &types.Search{
		MonitorID: m.ID,
		QueryText: m.QueryText,
		Status:    types.SearchStatusCompleted,
	}
	if err := e.searches.Create(ctx, srch); err != nil {
		return "", err
	}

	report := &types.Report{
		UserID:      m.UserID,
		MonitorID:   m.ID,
		SearchID:    srch.ID,
		ArtifactURL: artifactURL,
		ItemCount:   len(ranked),
	}
	if err := e.reports.Create(ctx, report); err != nil {
		return "", err
	}

	jobID, err := e.queue.Enqueue(ctx, types.TaskSendNotification, types.NotificationJob{
		ReportID: report.ID,
	})
	if err != nil {
		return "", err
	}

	e.logger.InfoContext(ctx, "scan completed",
		"monitor_id", m.ID,
		"report_id", report.ID,
		"item_count", len(ranked),
		"notification_job_id", jobID,
	)
	return OutcomeCompleted, nil
}

// resolveMonitor prefers the snapshot embedded in the job; API test scans
// carry only the ID, so fall back to a lookup. (nil, nil) means the monitor
// no longer exists.
func (e *Executor) resolveMonitor(ctx context.Context, job types.ScanJob) (*types.Monitor, error) {
	if job.Monitor != nil {
		return job.Monitor, nil
	}
	return e.monitors.GetByID(ctx, job.MonitorID)
}

// recordSearch inserts a search row best-effort.
func (e *Executor) recordSearch(ctx context.Context, m *types.Monitor, status types.SearchStatus) {
	srch := &types.Search{
		MonitorID: m.ID,
		QueryText: m.QueryText,
		Status:    status,
	}
	if err := e.searches.Create(ctx, srch); err != nil {
		e.logger.ErrorContext(ctx, "failed to record search attempt",
			"monitor_id", m.ID,
			"error", err.Error(),
		)
	}
}

// artifactDocument is the JSON document stored as the report artifact.
type artifactDocument struct {
	MonitorID   string             `json:"monitor_id"`
	QueryText   string             `json:"query_text"`
	GeneratedAt time.Time          `json:"generated_at"`
	Summary     string             `json:"summary"`
	Items       []types.RankedItem `json:"items"`
}

// uploadArtifact renders and stores the full listing. Storage is best effort:
// any failure logs and returns nil, and the report is created without a
// download link.
func (e *Executor) uploadArtifact(ctx context.Context, m *types.Monitor, ranked []types.RankedItem) *string {
	if e.store == nil || !e.store.Enabled() {
		return nil
	}

	doc := artifactDocument{
		MonitorID:   m.ID,
		QueryText:   m.QueryText,
		GeneratedAt: time.Now().UTC(),
		Summary:     SummaryLine(m.QueryText, len(ranked)),
		Items:       ranked,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to render report artifact",
			"monitor_id", m.ID,
			"error", err.Error(),
		)
		return nil
	}

	url, err := e.store.Upload(ctx, uuid.New().String(), payload)
	if err != nil {
		e.logger.ErrorContext(ctx, "artifact upload failed, continuing without download link",
			"monitor_id", m.ID,
			"error", err.Error(),
		)
		return nil
	}
	return &url
}
