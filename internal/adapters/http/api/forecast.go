package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/conjunction/internal/adapters/mq/queue"
	"github.com/okian/conjunction/internal/adapters/source"
	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/internal/domain/report"
)

// ForecastDependencies defines what the forecast and refresh handlers need.
type ForecastDependencies interface {
	ForecastEvents(ctx context.Context, msgs []model.RawMessage) (map[string]model.DecisionRecord, error)
	RequestRefresh(ctx context.Context, reason string) (queue.Request, error)
}

// ForecastHandler handles on-demand forecasts and refresh requests.
type ForecastHandler struct {
	deps       ForecastDependencies
	normalizer *report.Normalizer
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(deps ForecastDependencies) *ForecastHandler {
	return &ForecastHandler{deps: deps, normalizer: report.NewNormalizer()}
}

type refreshResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// HandleForecast handles POST /forecast. The body is a report feed in the
// same shape a source delivers; the response maps event keys to decisions.
func (h *ForecastHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_forecast"
	recs, err := report.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	msgs, _ := h.normalizer.Normalize(r.Context(), recs)

	out, err := h.deps.ForecastEvents(r.Context(), msgs)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRefresh handles POST /refresh by queueing a refresh run.
func (h *ForecastHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_refresh"
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "api"
	}

	req, err := h.deps.RequestRefresh(r.Context(), reason)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: "accepted", RequestID: req.ID})
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, source.ErrNotConfigured):
		writeError(w, http.StatusConflict, "no_source", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	}
}
