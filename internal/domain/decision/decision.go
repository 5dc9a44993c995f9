// Package decision turns a forecast and its event context into a
// traffic-light status, a trend and a deadline.
package decision

import (
	"math"
	"time"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/internal/domain/sequence"
)

// Defaults. Thresholds are log10 Pc.
const (
	DefaultHighThreshold      = -4.0
	DefaultMediumThreshold    = -5.0
	DefaultCriticalMissMeters = 1000.0
	DefaultReactionWindow     = 6 * time.Hour
	DefaultTrendBand          = 0.10
)

// Engine applies the decision rules. It holds only configuration.
type Engine struct {
	high         float64
	medium       float64
	criticalMiss float64
	window       time.Duration
	band         float64
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		high:         DefaultHighThreshold,
		medium:       DefaultMediumThreshold,
		criticalMiss: DefaultCriticalMissMeters,
		window:       DefaultReactionWindow,
		band:         DefaultTrendBand,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide builds the record for one event. A nil forecast yields GRAY; the
// deadline is computed either way.
func (e *Engine) Decide(meta model.EventMeta, fc *model.ForecastResult) model.DecisionRecord {
	rec := model.DecisionRecord{
		Key:    meta.Key,
		Status: model.StatusGray,
		Trend:  model.TrendStable,
		Meta:   meta,
	}
	e.deadline(meta, &rec)

	if fc == nil {
		return rec
	}

	value := fc.Value
	prob := math.Pow(10, value)
	rec.ForecastValue = &value
	rec.ForecastProbability = &prob
	rec.Certainty = fc.Certainty
	rec.Status = e.status(value, meta.LatestMissDistance)
	rec.Trend = e.trend(prob, value, meta.LatestProbability)
	return rec
}

func (e *Engine) status(value float64, miss *float64) model.Status {
	switch {
	case value >= e.high:
		return model.StatusRed
	case miss != nil && *miss < e.criticalMiss:
		return model.StatusRed
	case value >= e.medium:
		return model.StatusYellow
	default:
		return model.StatusGreen
	}
}

// trend compares the forecast probability with the latest reported one.
// A zero latest Pc has no relative band: anything above the feature floor
// is INCREASING.
func (e *Engine) trend(prob, value, latest float64) model.Trend {
	if latest == 0 {
		if value > math.Log10(sequence.MinProbability) {
			return model.TrendIncreasing
		}
		return model.TrendStable
	}
	delta := prob - latest
	limit := math.Abs(latest) * e.band
	switch {
	case delta > limit:
		return model.TrendIncreasing
	case delta < -limit:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// deadline fills HoursToDecision relative to the latest report: the time
// left until TCA minus the reaction window. Negative means overdue.
func (e *Engine) deadline(meta model.EventMeta, rec *model.DecisionRecord) {
	if !meta.TCAValid || meta.TCA.IsZero() || meta.LatestCreated.IsZero() {
		return
	}
	tlo := meta.TCA.Add(-e.window)
	hours := tlo.Sub(meta.LatestCreated).Hours()
	rec.HoursToDecision = math.Round(hours*100) / 100
	rec.DeadlineKnown = true
	rec.Overdue = hours < 0
}
