package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/conjunction/internal/adapters/repository"
)

// EventDependencies defines the interface for event reads.
type EventDependencies interface {
	Latest(ctx context.Context) []repository.Entry
	Event(ctx context.Context, key string) (repository.Entry, error)
	TopN(ctx context.Context, n int) ([]repository.Entry, error)
	History(ctx context.Context, key string, limit int) ([]repository.HistoryEntry, error)
}

// EventsHandler serves the latest decisions.
type EventsHandler struct {
	deps     EventDependencies
	maxLimit int
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, maxLimit int) *EventsHandler {
	return &EventsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /events: every event keyed by event key.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries := h.deps.Latest(r.Context())
	out := make(map[string]repository.Entry, len(entries))
	for _, e := range entries {
		out[e.Record.Key] = e
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTop handles GET /events/top?limit=N.
func (h *EventsHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_top"
	n, err := parseLimit(r, defaultTopLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGet handles GET /events/{key}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	entry, err := h.deps.Event(r.Context(), r.PathValue("key"))
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleHistory handles GET /events/{key}/history?limit=N.
func (h *EventsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event_history"
	n, err := parseLimit(r, defaultRunsLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	hist, err := h.deps.History(r.Context(), r.PathValue("key"), n)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLimit) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	if hist == nil {
		hist = []repository.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, hist)
}
