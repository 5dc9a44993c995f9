package api

import (
	"context"
	"net/http"

	"github.com/okian/conjunction/internal/adapters/repository"
)

// SatelliteDependencies defines the per-primary read view.
type SatelliteDependencies interface {
	Primaries(ctx context.Context) []repository.PrimarySummary
	Encounters(ctx context.Context, primaryID string) ([]repository.Entry, error)
}

// SatellitesHandler serves the nested primary -> encounters view.
type SatellitesHandler struct {
	deps SatelliteDependencies
}

// NewSatellitesHandler creates a new satellites handler.
func NewSatellitesHandler(deps SatelliteDependencies) *SatellitesHandler {
	return &SatellitesHandler{deps: deps}
}

// HandleList handles GET /satellites.
func (h *SatellitesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Primaries(r.Context()))
}

// HandleEncounters handles GET /satellites/{id}/encounters. Encounters are
// keyed by "{secondary}_{tca}" like the nested export.
func (h *SatellitesHandler) HandleEncounters(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_encounters"
	id := r.PathValue("id")
	entries, err := h.deps.Encounters(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	out := make(map[string]repository.Entry, len(entries))
	for _, e := range entries {
		out[encounterKey(id, e.Record.Key)] = e
	}
	writeJSON(w, http.StatusOK, out)
}

// encounterKey strips the "{primary}_" prefix from an event key.
func encounterKey(primaryID, key string) string {
	prefix := primaryID + "_"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
