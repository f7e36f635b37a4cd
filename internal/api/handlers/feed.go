package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/core"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// ReportLister provides the report feed query for the authenticated user.
type ReportLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*types.Report, error)
}

// FeedHandler serves the authenticated user's report feed.
type FeedHandler struct {
	reports ReportLister
	logger  *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(reports ReportLister, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandler{reports: reports, logger: logger}
}

// RegisterRoutes mounts the feed route on the provided chi.Router.
func (h *FeedHandler) RegisterRoutes(r chi.Router) {
	r.Get("/feed", h.List)
}

type feedResponse struct {
	Reports []*types.Report `json:"reports"`
}

// List handles GET /v1/feed: the caller's reports, newest first. The limit
// query parameter is clamped to [1, 100] and defaults to 20.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"authentication required", nil))
		return
	}

	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidID,
				"limit must be a positive integer", err))
			return
		}
		limit = min(n, maxFeedLimit)
	}

	reports, err := h.reports.ListByUser(r.Context(), actor.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if reports == nil {
		reports = []*types.Report{}
	}

	core.JSON(w, r, http.StatusOK, feedResponse{Reports: reports})
}
