package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-membership-api/internal/application/sweep"
	"github.com/go-membership-api/internal/domain"
)

// SweepRunner runs a named sweep job.
type SweepRunner interface {
	Run(ctx context.Context, job string) (*sweep.Report, error)
}

// SweepHandler exposes manual sweep runs to operators.
type SweepHandler struct {
	jobs   SweepRunner
	logger *slog.Logger
}

func NewSweepHandler(jobs SweepRunner, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{jobs: jobs, logger: logger}
}

func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	rep, err := h.jobs.Run(r.Context(), chi.URLParam(r, "job"))
	if errors.Is(err, domain.ErrBadRequest) {
		writeError(w, http.StatusNotFound, domain.CodeValidation, "unknown job")
		return
	}
	if err != nil {
		httpError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
