// Package sequence turns an event's report history into the fixed-length
// feature window the forecaster consumes.
package sequence

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/conjunction/internal/domain/model"
)

// Feature scaling constants.
const (
	// MinProbability floors Pc before taking log10.
	MinProbability = 1e-30
	// DefaultMissDistanceSentinel stands in for an unreported miss distance (m).
	DefaultMissDistanceSentinel = 1e5
	// DefaultLength is the sequence length used when none is configured.
	DefaultLength = 10
)

// Builder builds sequences of a fixed length.
type Builder struct {
	length       int
	missSentinel float64
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		length:       DefaultLength,
		missSentinel: DefaultMissDistanceSentinel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Length returns L.
func (b *Builder) Length() int { return b.length }

// Build returns the sequence and metadata for one event. The history is
// sorted by creation time on a copy; the event is not modified.
func (b *Builder) Build(ev *model.ConjunctionEvent) (model.Sequence, model.EventMeta, error) {
	if ev == nil || len(ev.History) == 0 {
		key := ""
		if ev != nil {
			key = ev.Key
		}
		return model.Sequence{}, model.EventMeta{}, fmt.Errorf("%w: %s", ErrEmptyHistory, key)
	}

	history := make([]model.Message, len(ev.History))
	copy(history, ev.History)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Created.Before(history[j].Created)
	})

	rows := make([]model.FeatureVector, 0, len(history))
	for _, m := range history {
		rows = append(rows, b.features(m, ev.TCAValid))
	}

	return model.Sequence{Rows: b.fit(rows)}, meta(ev, history), nil
}

// Result pairs an event's sequence and metadata.
type Result struct {
	Sequence model.Sequence
	Meta     model.EventMeta
}

// BuildAll builds every event and returns results sorted by key together
// with the keys of events excluded for an empty history.
func (b *Builder) BuildAll(events map[string]*model.ConjunctionEvent) ([]Result, []string) {
	keys := make([]string, 0, len(events))
	for k := range events {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Result, 0, len(keys))
	var skipped []string
	for _, k := range keys {
		seq, m, err := b.Build(events[k])
		if err != nil {
			skipped = append(skipped, k)
			continue
		}
		out = append(out, Result{Sequence: seq, Meta: m})
	}
	return out, skipped
}

func (b *Builder) features(m model.Message, tcaValid bool) model.FeatureVector {
	var f model.FeatureVector
	f[model.FeatureLogProbability] = math.Log10(math.Max(m.Probability, MinProbability))

	miss := b.missSentinel
	if m.MissDistance != nil && !math.IsNaN(*m.MissDistance) {
		miss = math.Max(*m.MissDistance, 0)
	}
	f[model.FeatureLogMissDistance] = math.Log1p(miss)

	if tcaValid && !m.TCA.IsZero() {
		f[model.FeatureHoursToTCA] = m.TCA.Sub(m.Created).Hours()
	}
	return f
}

// fit keeps the last L rows or left-pads with zero rows.
func (b *Builder) fit(rows []model.FeatureVector) []model.FeatureVector {
	if len(rows) >= b.length {
		out := make([]model.FeatureVector, b.length)
		copy(out, rows[len(rows)-b.length:])
		return out
	}
	out := make([]model.FeatureVector, b.length)
	copy(out[b.length-len(rows):], rows)
	return out
}

func meta(ev *model.ConjunctionEvent, history []model.Message) model.EventMeta {
	latest := history[len(history)-1]
	m := model.EventMeta{
		Key:                ev.Key,
		PrimaryID:          ev.PrimaryID,
		SecondaryID:        ev.SecondaryID,
		TCAValid:           ev.TCAValid,
		LatestProbability:  latest.Probability,
		LatestCreated:      latest.Created,
		MessageCount:       len(history),
		ProbabilityHistory: make([]float64, 0, len(history)),
	}
	if ev.TCAValid {
		m.TCA = ev.TCA.Truncate(time.Minute)
	}
	if latest.MissDistance != nil {
		v := *latest.MissDistance
		m.LatestMissDistance = &v
	}

	m.MaxProbability = math.Inf(-1)
	for _, h := range history {
		m.ProbabilityHistory = append(m.ProbabilityHistory, h.Probability)
		m.MaxProbability = math.Max(m.MaxProbability, h.Probability)
		if h.MissDistance != nil && (m.MinMissDistance == nil || *h.MissDistance < *m.MinMissDistance) {
			v := *h.MissDistance
			m.MinMissDistance = &v
		}
	}
	return m
}
