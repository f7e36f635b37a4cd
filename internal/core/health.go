package core

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/queue"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// healthCheckTimeout bounds the database probe on GET /health.
const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HandleHealth probes the database and reports service health. A failed
// probe returns 503 so load balancers stop routing here.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if s.DB != nil {
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Error("health check failed", slog.String("error", err.Error()))
			JSON(w, r, http.StatusServiceUnavailable, healthResponse{
				Status:     "unhealthy",
				Components: map[string]string{"database": "unreachable"},
			})
			return
		}
	}

	JSON(w, r, http.StatusOK, healthResponse{
		Status:     "healthy",
		Components: map[string]string{"database": "ok"},
	})
}

// Enqueuer publishes a job and returns its ID. Satisfied by *queue.Producer.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload any) (string, error)
}

// WorkerHealth verifies the worker loop end to end: it enqueues a ping job
// and waits for the worker to write the reply into Redis.
type WorkerHealth struct {
	queue    Enqueuer
	replies  queue.ReplyStore
	redis    Pinger
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
}

// NewWorkerHealth wires the round-trip probe. The defaults wait up to three
// seconds, polling every 200ms.
func NewWorkerHealth(q Enqueuer, replies queue.ReplyStore, redis Pinger, logger *slog.Logger) *WorkerHealth {
	return &WorkerHealth{
		queue:    q,
		replies:  replies,
		redis:    redis,
		logger:   logger,
		timeout:  3 * time.Second,
		interval: 200 * time.Millisecond,
	}
}

type workerHealthResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// HandleWorkerHealth answers GET /health/worker. It checks Redis, enqueues
// a ping task, and polls for the worker's reply until the probe deadline.
func (s *Server) HandleWorkerHealth(w http.ResponseWriter, r *http.Request) {
	if s.WorkerHealth == nil {
		JSON(w, r, http.StatusServiceUnavailable, workerHealthResponse{
			Status: "unknown",
			Reason: "worker probe not configured",
		})
		return
	}
	s.WorkerHealth.Handle(w, r)
}

// Handle runs the round-trip probe and writes the result.
func (h *WorkerHealth) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.redis.Ping(ctx); err != nil {
		h.logger.Error("worker health: redis unreachable", slog.String("error", err.Error()))
		JSON(w, r, http.StatusServiceUnavailable, workerHealthResponse{
			Status: "unhealthy",
			Reason: "redis unreachable",
		})
		return
	}

	jobID, err := h.queue.Enqueue(ctx, types.TaskPing, struct{}{})
	if err != nil {
		h.logger.Error("worker health: enqueue failed", slog.String("error", err.Error()))
		JSON(w, r, http.StatusServiceUnavailable, workerHealthResponse{
			Status: "unhealthy",
			Reason: "queue unreachable",
		})
		return
	}

	key := queue.PingReplyKey(jobID)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		reply, err := h.replies.GetReply(ctx, key)
		if err != nil {
			h.logger.Error("worker health: reply lookup failed", slog.String("error", err.Error()))
		} else if reply != "" {
			JSON(w, r, http.StatusOK, workerHealthResponse{
				Status: "healthy",
				JobID:  jobID,
			})
			return
		}

		select {
		case <-ctx.Done():
			JSON(w, r, http.StatusServiceUnavailable, workerHealthResponse{
				Status: "unhealthy",
				JobID:  jobID,
				Reason: "no worker reply before deadline",
			})
			return
		case <-ticker.C:
		}
	}
}
