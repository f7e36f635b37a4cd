package scan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// ============================================================
// Mocks
// ============================================================

type mockMonitorSource struct {
	monitor *types.Monitor
	err     error
}

func (m *mockMonitorSource) GetByID(_ context.Context, _ string) (*types.Monitor, error) {
	return m.monitor, m.err
}

type mockSearchRecorder struct {
	created []*types.Search
	err     error
}

func (m *mockSearchRecorder) Create(_ context.Context, s *types.Search) error {
	if m.err != nil {
		return m.err
	}
	s.ID = "srch_1"
	m.created = append(m.created, s)
	return nil
}

type mockReportRecorder struct {
	created []*types.Report
	err     error
}

func (m *mockReportRecorder) Create(_ context.Context, r *types.Report) error {
	if m.err != nil {
		return m.err
	}
	r.ID = "rep_1"
	m.created = append(m.created, r)
	return nil
}

type mockProvider struct {
	items []types.ResultItem
	err   error
}

func (m *mockProvider) Search(_ context.Context, _ string) ([]types.ResultItem, error) {
	return m.items, m.err
}

type mockUploader struct {
	enabled bool
	url     string
	err     error
	uploads int
	payload []byte
}

func (m *mockUploader) Enabled() bool { return m.enabled }

func (m *mockUploader) Upload(_ context.Context, _ string, payload []byte) (string, error) {
	m.uploads++
	m.payload = payload
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

type mockNotifier struct {
	calls []any
	err   error
}

func (m *mockNotifier) Enqueue(_ context.Context, task string, payload any) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if task != types.TaskSendNotification {
		return "", errors.New("unexpected task " + task)
	}
	m.calls = append(m.calls, payload)
	return "job_notif", nil
}

// ============================================================
// Helpers
// ============================================================

type executorDeps struct {
	monitors *mockMonitorSource
	searches *mockSearchRecorder
	reports  *mockReportRecorder
	provider *mockProvider
	store    *mockUploader
	queue    *mockNotifier
}

func newExecutorDeps() *executorDeps {
	return &executorDeps{
		monitors: &mockMonitorSource{},
		searches: &mockSearchRecorder{},
		reports:  &mockReportRecorder{},
		provider: &mockProvider{},
		store:    &mockUploader{enabled: true, url: "https://bucket.s3.us-east-1.amazonaws.com/reports/x.json.gz"},
		queue:    &mockNotifier{},
	}
}

func (d *executorDeps) executor() *Executor {
	return NewExecutor(d.monitors, d.searches, d.reports, d.provider, d.store, d.queue, slog.Default())
}

func activeMonitor() *types.Monitor {
	return &types.Monitor{
		ID:        "mon_1",
		UserID:    "user_1",
		QueryText: "acme breach",
		Cadence:   types.CadenceDaily,
		Active:    true,
	}
}

func snapshotJob() types.ScanJob {
	return types.ScanJob{MonitorID: "mon_1", Monitor: activeMonitor()}
}

// ============================================================
// Tests
// ============================================================

func TestExecute_HappyPath(t *testing.T) {
	d := newExecutorDeps()
	d.provider.items = []types.ResultItem{
		{Title: "Acme breach confirmed", Snippet: "leaked credentials"},
		{Title: "Acme quarterly results"},
	}

	outcome, err := d.executor().Execute(context.Background(), snapshotJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", outcome)
	}

	if len(d.searches.created) != 1 {
		t.Fatalf("expected 1 search row, got %d", len(d.searches.created))
	}
	if d.searches.created[0].Status != types.SearchStatusCompleted {
		t.Errorf("expected completed search, got %s", d.searches.created[0].Status)
	}

	if len(d.reports.created) != 1 {
		t.Fatalf("expected 1 report row, got %d", len(d.reports.created))
	}
	rep := d.reports.created[0]
	if rep.SearchID != "srch_1" {
		t.Errorf("report must reference the search row, got %q", rep.SearchID)
	}
	if rep.ItemCount != 2 {
		t.Errorf("expected item_count 2, got %d", rep.ItemCount)
	}
	if rep.ArtifactURL == nil || *rep.ArtifactURL != d.store.url {
		t.Errorf("expected artifact URL set, got %v", rep.ArtifactURL)
	}

	if len(d.queue.calls) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(d.queue.calls))
	}
	notif := d.queue.calls[0].(types.NotificationJob)
	if notif.ReportID != "rep_1" {
		t.Errorf("notification must carry the report ID, got %q", notif.ReportID)
	}

	// The stored artifact lists the ranked items.
	var doc artifactDocument
	if err := json.Unmarshal(d.store.payload, &doc); err != nil {
		t.Fatalf("artifact payload is not valid JSON: %v", err)
	}
	if len(doc.Items) != 2 || doc.Items[0].Title != "Acme breach confirmed" {
		t.Errorf("unexpected artifact items: %+v", doc.Items)
	}
}

func TestExecute_SnapshotAvoidsLookup(t *testing.T) {
	d := newExecutorDeps()
	d.monitors.err = errors.New("lookup must not happen")

	_, err := d.executor().Execute(context.Background(), snapshotJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecute_MissingMonitorSkips(t *testing.T) {
	d := newExecutorDeps()
	d.monitors.monitor = nil // (nil, nil): monitor deleted

	outcome, err := d.executor().Execute(context.Background(), types.ScanJob{MonitorID: "mon_gone"})
	if err != nil {
		t.Fatalf("skip must not error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if len(d.queue.calls) != 0 {
		t.Error("skip paths must not enqueue notifications")
	}
	if len(d.reports.created) != 0 {
		t.Error("skip paths must not create reports")
	}
}

func TestExecute_InactiveMonitorSkips(t *testing.T) {
	d := newExecutorDeps()
	m := activeMonitor()
	m.Active = false

	outcome, err := d.executor().Execute(context.Background(), types.ScanJob{MonitorID: m.ID, Monitor: m})
	if err != nil {
		t.Fatalf("skip must not error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestExecute_EmptyQuerySkips(t *testing.T) {
	d := newExecutorDeps()
	m := activeMonitor()
	m.QueryText = "   "

	outcome, err := d.executor().Execute(context.Background(), types.ScanJob{MonitorID: m.ID, Monitor: m})
	if err != nil {
		t.Fatalf("skip must not error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestExecute_ProviderFailureRecordsFailedSearch(t *testing.T) {
	d := newExecutorDeps()
	d.provider.err = types.NewAppError(types.ErrCodeUpstreamSearch, "provider down", nil)

	_, err := d.executor().Execute(context.Background(), snapshotJob())
	if err == nil {
		t.Fatal("provider failure must propagate for redelivery")
	}

	if len(d.searches.created) != 1 || d.searches.created[0].Status != types.SearchStatusFailed {
		t.Errorf("expected one failed search row, got %+v", d.searches.created)
	}
	if len(d.reports.created) != 0 {
		t.Error("no report may be created on provider failure")
	}
	if len(d.queue.calls) != 0 {
		t.Error("no notification may be enqueued on provider failure")
	}
}

func TestExecute_UploadFailureContinuesWithoutArtifact(t *testing.T) {
	d := newExecutorDeps()
	d.provider.items = []types.ResultItem{{Title: "Acme breach"}}
	d.store.err = errors.New("s3 down")

	outcome, err := d.executor().Execute(context.Background(), snapshotJob())
	if err != nil {
		t.Fatalf("upload failure must not fail the scan: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", outcome)
	}

	rep := d.reports.created[0]
	if rep.ArtifactURL != nil {
		t.Errorf("expected nil artifact URL, got %v", *rep.ArtifactURL)
	}
	if len(d.queue.calls) != 1 {
		t.Error("notification still goes out without an artifact")
	}
}

func TestExecute_StoreDisabledSkipsUpload(t *testing.T) {
	d := newExecutorDeps()
	d.store.enabled = false
	d.provider.items = []types.ResultItem{{Title: "Acme breach"}}

	_, err := d.executor().Execute(context.Background(), snapshotJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.store.uploads != 0 {
		t.Error("disabled store must not receive uploads")
	}
	if d.reports.created[0].ArtifactURL != nil {
		t.Error("expected nil artifact URL with storage disabled")
	}
}

func TestExecute_ReportInsertFailurePropagates(t *testing.T) {
	d := newExecutorDeps()
	d.reports.err = types.NewAppError(types.ErrCodeInternalDB, "insert failed", nil)

	_, err := d.executor().Execute(context.Background(), snapshotJob())
	if err == nil {
		t.Fatal("report insert failure must propagate")
	}
	if len(d.queue.calls) != 0 {
		t.Error("no notification may be enqueued when the report insert fails")
	}
}

func TestNewHandler_MalformedPayloadAcked(t *testing.T) {
	d := newExecutorDeps()
	h := NewHandler(d.executor(), slog.Default())

	err := h(context.Background(), types.JobEnvelope{
		JobID:   "job_1",
		Task:    types.TaskScanMonitor,
		Payload: json.RawMessage("{broken"),
	})
	if err != nil {
		t.Fatalf("malformed payload must be acked, got error %v", err)
	}
}

func TestSummaryLine(t *testing.T) {
	if got := SummaryLine("acme breach", 1); got != `1 result for "acme breach"` {
		t.Errorf("unexpected singular summary %q", got)
	}
	if got := SummaryLine("acme breach", 3); got != `3 results for "acme breach"` {
		t.Errorf("unexpected plural summary %q", got)
	}
}
