// Package repository keeps the latest decision snapshot in memory and the
// history of refresh runs in SQLite.
package repository

import (
	"context"
	"time"

	"github.com/okian/conjunction/internal/domain/model"
)

// Entry is a ranked decision record.
type Entry struct {
	Rank   int                  `json:"rank"`
	Record model.DecisionRecord `json:"record"`
}

// PrimarySummary describes one primary object across its encounters.
type PrimarySummary struct {
	PrimaryID   string       `json:"primary_id"`
	Encounters  int          `json:"encounters"`
	WorstStatus model.Status `json:"worst_status"`
	MaxForecast *float64     `json:"max_forecast,omitempty"`
}

// Store serves the most recent set of decisions.
type Store interface {
	// Publish replaces the current snapshot.
	Publish(ctx context.Context, runID string, at time.Time, recs map[string]model.DecisionRecord)

	// Get returns one event. Returns ErrNotFound if the key is unknown.
	Get(ctx context.Context, key string) (Entry, error)

	// TopN returns the n highest-forecast events; events without a
	// forecast rank last.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// All returns every event in rank order.
	All(ctx context.Context) []Entry

	// Primaries summarizes events per primary object, sorted by id.
	Primaries(ctx context.Context) []PrimarySummary

	// Encounters returns the events of one primary in rank order.
	// Returns ErrNotFound if the primary has none.
	Encounters(ctx context.Context, primaryID string) ([]Entry, error)

	// Count returns the number of events tracked.
	Count(ctx context.Context) int

	// Version identifies the published snapshot.
	Version(ctx context.Context) (runID string, at time.Time)
}

// Run is one refresh of the decision snapshot.
type Run struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Events     int       `json:"events"`
	Error      string    `json:"error,omitempty"`
}

// HistoryEntry is one event's decision in one run.
type HistoryEntry struct {
	RunID           string       `json:"run_id"`
	At              time.Time    `json:"at"`
	Key             string       `json:"key"`
	Status          model.Status `json:"status"`
	Trend           model.Trend  `json:"trend"`
	Forecast        *float64     `json:"forecast,omitempty"`
	Certainty       float64      `json:"certainty"`
	HoursToDecision float64      `json:"hours_to_decision"`
	Overdue         bool         `json:"overdue"`
}

// RunStore persists run history.
type RunStore interface {
	SaveRun(ctx context.Context, run Run, recs map[string]model.DecisionRecord) error
	Runs(ctx context.Context, limit int) ([]Run, error)
	History(ctx context.Context, key string, limit int) ([]HistoryEntry, error)
	Close() error
}
