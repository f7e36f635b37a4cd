package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/queue"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(_ context.Context) error { return p.err }

type stubEnqueuer struct {
	jobID string
	err   error
	tasks []string
}

func (e *stubEnqueuer) Enqueue(_ context.Context, task string, _ any) (string, error) {
	e.tasks = append(e.tasks, task)
	return e.jobID, e.err
}

// memReplyStore is an in-memory queue.ReplyStore.
type memReplyStore struct {
	mu      sync.Mutex
	replies map[string]string
}

func newMemReplyStore() *memReplyStore {
	return &memReplyStore{replies: make(map[string]string)}
}

func (s *memReplyStore) SetReply(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[key] = value
	return nil
}

func (s *memReplyStore) GetReply(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies[key], nil
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	return body
}

func TestHandleHealth_Healthy(t *testing.T) {
	s := newTestServer(t)
	s.DB = &stubPinger{}

	rec := httptest.NewRecorder()
	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeHealth(t, rec); body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestHandleHealth_DatabaseDown(t *testing.T) {
	s := newTestServer(t)
	s.DB = &stubPinger{err: errors.New("connection refused")}

	rec := httptest.NewRecorder()
	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeHealth(t, rec); body["status"] != "unhealthy" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestWorkerHealth_RoundTrip(t *testing.T) {
	enq := &stubEnqueuer{jobID: "job_ping_1"}
	replies := newMemReplyStore()
	h := NewWorkerHealth(enq, replies, &stubPinger{}, slog.Default())
	h.interval = 5 * time.Millisecond

	// Simulate the worker answering the ping.
	_ = replies.SetReply(context.Background(), queue.PingReplyKey("job_ping_1"), "pong", time.Minute)

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/health/worker", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(enq.tasks) != 1 || enq.tasks[0] != "ping" {
		t.Errorf("enqueued tasks = %v", enq.tasks)
	}
}

func TestWorkerHealth_NoReplyBeforeDeadline(t *testing.T) {
	enq := &stubEnqueuer{jobID: "job_ping_2"}
	h := NewWorkerHealth(enq, newMemReplyStore(), &stubPinger{}, slog.Default())
	h.timeout = 50 * time.Millisecond
	h.interval = 5 * time.Millisecond

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/health/worker", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWorkerHealth_RedisDown(t *testing.T) {
	enq := &stubEnqueuer{jobID: "job_ping_3"}
	h := NewWorkerHealth(enq, newMemReplyStore(), &stubPinger{err: errors.New("redis down")}, slog.Default())

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/health/worker", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(enq.tasks) != 0 {
		t.Errorf("nothing should be enqueued when redis is down, got %v", enq.tasks)
	}
}

func TestWorkerHealth_EnqueueFails(t *testing.T) {
	enq := &stubEnqueuer{err: errors.New("sqs down")}
	h := NewWorkerHealth(enq, newMemReplyStore(), &stubPinger{}, slog.Default())

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/health/worker", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
