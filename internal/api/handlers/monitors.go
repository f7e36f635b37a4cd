// Package handlers contains the HTTP handler implementations for the
// ThreatWatch API. Each handler depends on narrow local interfaces mirroring
// the concrete repository and queue methods it uses, so tests inject fakes
// without touching Postgres or SQS.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/core"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// MonitorStore defines the data access contract for monitor operations.
// Mirrors the db.MonitorRepository methods used by this handler.
type MonitorStore interface {
	Create(ctx context.Context, m *types.Monitor) error
	GetByID(ctx context.Context, id string) (*types.Monitor, error)
}

// ScanEnqueuer publishes scan jobs to the work queue.
type ScanEnqueuer interface {
	Enqueue(ctx context.Context, task string, payload any) (string, error)
}

// CreateMonitorRequest is the request body for POST /v1/monitors.
type CreateMonitorRequest struct {
	QueryText string `json:"query_text"`
	Frequency string `json:"frequency"`
}

// MonitorHandler manages monitor creation and on-demand test scans.
type MonitorHandler struct {
	monitors MonitorStore
	queue    ScanEnqueuer
	clock    schedule.Clock
	logger   *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler with the provided dependencies.
func NewMonitorHandler(monitors MonitorStore, queue ScanEnqueuer, logger *slog.Logger) *MonitorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorHandler{
		monitors: monitors,
		queue:    queue,
		clock:    schedule.RealClock{},
		logger:   logger,
	}
}

// WithClock replaces the clock, for tests.
func (h *MonitorHandler) WithClock(clock schedule.Clock) *MonitorHandler {
	h.clock = clock
	return h
}

// RegisterRoutes mounts monitor routes on the provided chi.Router.
func (h *MonitorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/monitors", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Post("/{id}/test", h.Test)
	})
}

// Create handles POST /v1/monitors.
//
// The monitor is persisted with its first recurring run one cadence step in
// the future, then an immediate scan is enqueued so the caller gets a first
// report without waiting for the sweep. A failed enqueue does not undo the
// insert: the monitor is live and the sweep covers it at next_run_at.
func (h *MonitorHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"authentication required", nil))
		return
	}

	var req CreateMonitorRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	req.QueryText = strings.TrimSpace(req.QueryText)
	if req.QueryText == "" {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"query_text is required", nil, map[string]any{"field": "query_text"}))
		return
	}
	if req.Frequency == "" {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"frequency is required", nil, map[string]any{"field": "frequency"}))
		return
	}

	cadence := types.Cadence(req.Frequency)
	if !cadence.Valid() {
		core.Error(w, r, types.NewAppError(types.ErrCodeUnsupportedCadence,
			"frequency must be one of daily, weekly, monthly", nil))
		return
	}

	now := h.clock.Now().UTC()
	next, err := schedule.NextRun(cadence, now, now)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	m := &types.Monitor{
		UserID:    actor.ID,
		QueryText: req.QueryText,
		Cadence:   cadence,
		Active:    true,
		NextRunAt: next,
	}
	if err := h.monitors.Create(r.Context(), m); err != nil {
		core.Error(w, r, err)
		return
	}

	h.enqueueScan(r.Context(), m)

	h.logger.InfoContext(r.Context(), "monitor created",
		"monitor_id", m.ID,
		"user_id", actor.ID,
		"frequency", string(cadence),
	)
	core.JSON(w, r, http.StatusCreated, m)
}

// Test handles POST /v1/monitors/{id}/test: it enqueues one scan for an
// existing monitor without touching its schedule. Unknown and foreign
// monitor IDs both answer 404.
func (h *MonitorHandler) Test(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	m, err := h.monitors.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if m == nil || m.UserID != actor.ID {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundMonitor,
			"monitor not found", nil))
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), types.TaskScanMonitor, types.ScanJob{
		MonitorID: m.ID,
		Monitor:   m,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, map[string]string{
		"monitor_id": m.ID,
		"job_id":     jobID,
		"status":     "queued",
	})
}

// enqueueScan publishes the immediate post-create scan, best effort.
func (h *MonitorHandler) enqueueScan(ctx context.Context, m *types.Monitor) {
	if _, err := h.queue.Enqueue(ctx, types.TaskScanMonitor, types.ScanJob{
		MonitorID: m.ID,
		Monitor:   m,
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue initial scan",
			"monitor_id", m.ID,
			"error", err.Error(),
		)
	}
}
