package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/core"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// ReportStore resolves report rows for download redirects.
type ReportStore interface {
	GetByID(ctx context.Context, id string) (*types.Report, error)
}

// ReportHandler serves report downloads.
type ReportHandler struct {
	reports ReportStore
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports ReportStore, logger *slog.Logger) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandler{reports: reports, logger: logger}
}

// RegisterRoutes mounts report routes on the provided chi.Router.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/reports/{id}/download", h.Download)
}

// Download handles GET /v1/reports/{id}/download with a temporary redirect
// to the stored artifact. A missing report, a report owned by someone else,
// and a report without an artifact all answer 404: the URL space must not
// reveal which of those happened.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	rep, err := h.reports.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if rep == nil || rep.UserID != actor.ID || rep.ArtifactURL == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundReport,
			"report not found", nil))
		return
	}

	http.Redirect(w, r, *rep.ArtifactURL, http.StatusTemporaryRedirect)
}
