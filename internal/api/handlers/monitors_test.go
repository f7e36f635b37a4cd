package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

type mockMonitorStore struct {
	created   []*types.Monitor
	createErr error
	monitor   *types.Monitor
	getErr    error
}

func (m *mockMonitorStore) Create(_ context.Context, mon *types.Monitor) error {
	if m.createErr != nil {
		return m.createErr
	}
	mon.ID = "mon_1"
	mon.CreatedAt = time.Now().UTC()
	mon.UpdatedAt = mon.CreatedAt
	m.created = append(m.created, mon)
	return nil
}

func (m *mockMonitorStore) GetByID(_ context.Context, _ string) (*types.Monitor, error) {
	return m.monitor, m.getErr
}

type mockScanEnqueuer struct {
	jobs    []types.ScanJob
	tasks   []string
	nextErr error
}

func (m *mockScanEnqueuer) Enqueue(_ context.Context, task string, payload any) (string, error) {
	if m.nextErr != nil {
		return "", m.nextErr
	}
	m.tasks = append(m.tasks, task)
	if job, ok := payload.(types.ScanJob); ok {
		m.jobs = append(m.jobs, job)
	}
	return "job_1", nil
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "user_1"}))
}

func monitorRouter(h *MonitorHandler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func errorCodeFromBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Code
}

func TestMonitorCreate_PersistsAndEnqueues(t *testing.T) {
	store := &mockMonitorStore{}
	queue := &mockScanEnqueuer{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	h := NewMonitorHandler(store, queue, nil).WithClock(schedule.FixedClock{Instant: now})

	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors",
		`{"query_text":"acme breach","frequency":"daily"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d monitors", len(store.created))
	}

	m := store.created[0]
	if m.UserID != "user_1" || !m.Active || m.Cadence != types.CadenceDaily {
		t.Errorf("monitor = %+v", m)
	}
	if want := now.AddDate(0, 0, 1); !m.NextRunAt.Equal(want) {
		t.Errorf("next_run_at = %v, want %v", m.NextRunAt, want)
	}

	if len(queue.jobs) != 1 || queue.jobs[0].MonitorID != "mon_1" {
		t.Fatalf("scan jobs = %+v", queue.jobs)
	}
	if queue.jobs[0].Monitor == nil {
		t.Error("immediate scan should carry the monitor snapshot")
	}

	var resp types.Monitor
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID != "mon_1" {
		t.Errorf("response ID = %q", resp.ID)
	}
}

func TestMonitorCreate_MissingFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no query", `{"frequency":"daily"}`},
		{"blank query", `{"query_text":"   ","frequency":"daily"}`},
		{"no frequency", `{"query_text":"acme breach"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockMonitorStore{}
			h := NewMonitorHandler(store, &mockScanEnqueuer{}, nil)

			rec := httptest.NewRecorder()
			monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors", tc.body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if code := errorCodeFromBody(t, rec); code != string(types.ErrCodeValidationMissingField) {
				t.Errorf("code = %s", code)
			}
			if len(store.created) != 0 {
				t.Error("nothing should be persisted")
			}
		})
	}
}

func TestMonitorCreate_UnsupportedCadence(t *testing.T) {
	store := &mockMonitorStore{}
	h := NewMonitorHandler(store, &mockScanEnqueuer{}, nil)

	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors",
		`{"query_text":"acme breach","frequency":"hourly"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCodeFromBody(t, rec); code != string(types.ErrCodeUnsupportedCadence) {
		t.Errorf("code = %s", code)
	}
}

func TestMonitorCreate_EnqueueFailureStillCreates(t *testing.T) {
	store := &mockMonitorStore{}
	queue := &mockScanEnqueuer{nextErr: errors.New("sqs down")}
	h := NewMonitorHandler(store, queue, nil)

	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors",
		`{"query_text":"acme breach","frequency":"weekly"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(store.created) != 1 {
		t.Fatal("monitor should still be persisted")
	}
}

func TestMonitorTest_EnqueuesWithoutRescheduling(t *testing.T) {
	mon := &types.Monitor{
		ID:        "mon_1",
		UserID:    "user_1",
		QueryText: "acme breach",
		Cadence:   types.CadenceDaily,
		Active:    true,
	}
	store := &mockMonitorStore{monitor: mon}
	queue := &mockScanEnqueuer{}
	h := NewMonitorHandler(store, queue, nil)

	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors/mon_1/test", ""))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(queue.jobs) != 1 || queue.jobs[0].MonitorID != "mon_1" {
		t.Fatalf("scan jobs = %+v", queue.jobs)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["job_id"] != "job_1" || resp["status"] != "queued" {
		t.Errorf("response = %v", resp)
	}
}

func TestMonitorTest_UnknownMonitor404(t *testing.T) {
	h := NewMonitorHandler(&mockMonitorStore{}, &mockScanEnqueuer{}, nil)

	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors/mon_gone/test", ""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCodeFromBody(t, rec); code != string(types.ErrCodeNotFoundMonitor) {
		t.Errorf("code = %s", code)
	}
}

func TestMonitorTest_ForeignMonitor404(t *testing.T) {
	store := &mockMonitorStore{monitor: &types.Monitor{ID: "mon_2", UserID: "user_other"}}
	queue := &mockScanEnqueuer{}
	h := NewMonitorHandler(store, queue, nil)

	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, authedRequest(http.MethodPost, "/monitors/mon_2/test", ""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(queue.jobs) != 0 {
		t.Error("nothing should be enqueued for a foreign monitor")
	}
}

func TestMonitorCreate_Unauthenticated(t *testing.T) {
	h := NewMonitorHandler(&mockMonitorStore{}, &mockScanEnqueuer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/monitors",
		strings.NewReader(`{"query_text":"acme","frequency":"daily"}`))
	rec := httptest.NewRecorder()
	monitorRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
