// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/conjunction/internal/adapters/mq/queue"
	"github.com/okian/conjunction/internal/adapters/repository"
	"github.com/okian/conjunction/internal/domain/model"
)

const (
	defaultTopLimit  = 10
	defaultRunsLimit = 20
	maxBodyBytes     = 32 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ForecastEvents runs the pipeline on a posted batch.
	ForecastEvents(ctx context.Context, msgs []model.RawMessage) (map[string]model.DecisionRecord, error)

	// RequestRefresh queues a refresh from the configured source.
	RequestRefresh(ctx context.Context, reason string) (queue.Request, error)

	// Read operations expose the latest snapshot and run history.
	Latest(ctx context.Context) []repository.Entry
	Event(ctx context.Context, key string) (repository.Entry, error)
	TopN(ctx context.Context, n int) ([]repository.Entry, error)
	Primaries(ctx context.Context) []repository.PrimarySummary
	Encounters(ctx context.Context, primaryID string) ([]repository.Entry, error)
	Runs(ctx context.Context, limit int) ([]repository.Run, error)
	History(ctx context.Context, key string, limit int) ([]repository.HistoryEntry, error)
}

// Server wires HTTP routes for the forecast API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	forecastHandler   *ForecastHandler
	eventsHandler     *EventsHandler
	satellitesHandler *SatellitesHandler
	runsHandler       *RunsHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// limit query parameter.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		forecastHandler:   NewForecastHandler(deps),
		eventsHandler:     NewEventsHandler(deps, maxLimit),
		satellitesHandler: NewSatellitesHandler(deps),
		runsHandler:       NewRunsHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /forecast", MetricsMiddleware(s.forecastHandler.HandleForecast, "forecast"))
	mux.HandleFunc("POST /refresh", MetricsMiddleware(s.forecastHandler.HandleRefresh, "refresh"))

	mux.HandleFunc("GET /events", MetricsMiddleware(s.eventsHandler.HandleList, "events"))
	mux.HandleFunc("GET /events/top", MetricsMiddleware(s.eventsHandler.HandleTop, "events_top"))
	mux.HandleFunc("GET /events/{key}", MetricsMiddleware(s.eventsHandler.HandleGet, "event"))
	mux.HandleFunc("GET /events/{key}/history", MetricsMiddleware(s.eventsHandler.HandleHistory, "event_history"))

	mux.HandleFunc("GET /satellites", MetricsMiddleware(s.satellitesHandler.HandleList, "satellites"))
	mux.HandleFunc("GET /satellites/{id}/encounters", MetricsMiddleware(s.satellitesHandler.HandleEncounters, "encounters"))

	mux.HandleFunc("GET /runs", MetricsMiddleware(s.runsHandler.HandleList, "runs"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// parseLimit reads ?limit, falling back to def when absent. Values below
// one or above maxLimit are rejected.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return min(def, maxLimit), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		return 0, errors.New("limit exceeds maximum " + strconv.Itoa(maxLimit))
	}
	return n, nil
}

// isNotFound translates upstream not-found errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrNotFound)
}
