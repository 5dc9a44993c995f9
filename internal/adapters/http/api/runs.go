package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/conjunction/internal/adapters/repository"
)

// RunDependencies defines the run history read.
type RunDependencies interface {
	Runs(ctx context.Context, limit int) ([]repository.Run, error)
}

// RunsHandler serves refresh run history.
type RunsHandler struct {
	deps     RunDependencies
	maxLimit int
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies, maxLimit int) *RunsHandler {
	return &RunsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /runs?limit=N, newest first.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_runs"
	n, err := parseLimit(r, defaultRunsLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	runs, err := h.deps.Runs(r.Context(), n)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLimit) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if runs == nil {
		runs = []repository.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
