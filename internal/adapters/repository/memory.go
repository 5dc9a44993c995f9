package repository

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/pkg/metrics"
)

// snapshot is immutable once published.
type snapshot struct {
	runID     string
	at        time.Time
	ranked    []Entry
	byKey     map[string]int   // index into ranked
	byPrimary map[string][]int // indexes into ranked, rank order
	primaries []PrimarySummary
}

// MemoryStore holds the latest snapshot behind an atomic pointer; readers
// never block a publish.
type MemoryStore struct {
	current atomic.Pointer[snapshot]
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.current.Store(buildSnapshot("", time.Time{}, nil))
	return s
}

// Publish implements Store.Publish.
func (s *MemoryStore) Publish(_ context.Context, runID string, at time.Time, recs map[string]model.DecisionRecord) {
	snap := buildSnapshot(runID, at, recs)
	s.current.Store(snap)
	metrics.UpdateTrackedEvents(len(snap.ranked))
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	snap := s.current.Load()
	i, ok := snap.byKey[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return snap.ranked[i], nil
}

// TopN implements Store.TopN.
func (s *MemoryStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	snap := s.current.Load()
	if n > len(snap.ranked) {
		n = len(snap.ranked)
	}
	out := make([]Entry, n)
	copy(out, snap.ranked[:n])
	return out, nil
}

// All implements Store.All.
func (s *MemoryStore) All(_ context.Context) []Entry {
	snap := s.current.Load()
	out := make([]Entry, len(snap.ranked))
	copy(out, snap.ranked)
	return out
}

// Primaries implements Store.Primaries.
func (s *MemoryStore) Primaries(_ context.Context) []PrimarySummary {
	snap := s.current.Load()
	out := make([]PrimarySummary, len(snap.primaries))
	copy(out, snap.primaries)
	return out
}

// Encounters implements Store.Encounters.
func (s *MemoryStore) Encounters(_ context.Context, primaryID string) ([]Entry, error) {
	snap := s.current.Load()
	idx, ok := snap.byPrimary[primaryID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, snap.ranked[i])
	}
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	return len(s.current.Load().ranked)
}

// Version implements Store.Version.
func (s *MemoryStore) Version(_ context.Context) (string, time.Time) {
	snap := s.current.Load()
	return snap.runID, snap.at
}

func buildSnapshot(runID string, at time.Time, recs map[string]model.DecisionRecord) *snapshot {
	snap := &snapshot{
		runID:     runID,
		at:        at,
		ranked:    make([]Entry, 0, len(recs)),
		byKey:     make(map[string]int, len(recs)),
		byPrimary: make(map[string][]int),
	}
	for _, rec := range recs {
		snap.ranked = append(snap.ranked, Entry{Record: rec})
	}
	sortEntries(snap.ranked)
	assignRanksWithTies(snap.ranked)

	summaries := make(map[string]*PrimarySummary)
	for i, e := range snap.ranked {
		snap.byKey[e.Record.Key] = i
		pid := e.Record.Meta.PrimaryID
		snap.byPrimary[pid] = append(snap.byPrimary[pid], i)

		ps, ok := summaries[pid]
		if !ok {
			ps = &PrimarySummary{PrimaryID: pid, WorstStatus: e.Record.Status}
			summaries[pid] = ps
		}
		ps.Encounters++
		if e.Record.Status.Severity() > ps.WorstStatus.Severity() {
			ps.WorstStatus = e.Record.Status
		}
		// ranked is forecast-descending, so the first forecast seen is the max.
		if ps.MaxForecast == nil && e.Record.ForecastValue != nil {
			v := *e.Record.ForecastValue
			ps.MaxForecast = &v
		}
	}

	snap.primaries = make([]PrimarySummary, 0, len(summaries))
	for _, ps := range summaries {
		snap.primaries = append(snap.primaries, *ps)
	}
	sort.Slice(snap.primaries, func(i, j int) bool {
		return snap.primaries[i].PrimaryID < snap.primaries[j].PrimaryID
	})
	return snap
}

// sortEntries orders by forecast descending with forecast-less records last,
// then by key ascending.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Record, entries[j].Record
		if a.HasForecast() != b.HasForecast() {
			return a.HasForecast()
		}
		if a.HasForecast() && *a.ForecastValue != *b.ForecastValue {
			return *a.ForecastValue > *b.ForecastValue
		}
		return a.Key < b.Key
	})
}

// assignRanksWithTies gives equal forecasts the same rank; ranks are
// consecutive. Records without a forecast share the last rank.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || !sameForecast(entries[i-1].Record, entries[i].Record) {
			rank++
		}
		entries[i].Rank = rank
	}
}

func sameForecast(a, b model.DecisionRecord) bool {
	if a.HasForecast() != b.HasForecast() {
		return false
	}
	return !a.HasForecast() || *a.ForecastValue == *b.ForecastValue
}
