// Package model contains domain models passed between layers.
package model

import "time"

// NumFeatures is the width of a FeatureVector.
const NumFeatures = 3

// Feature column indexes.
const (
	FeatureLogProbability  = 0
	FeatureLogMissDistance = 1
	FeatureHoursToTCA      = 2
)

// RawMessage is one conjunction report as handed over by ingestion. Time
// fields are kept as received; numeric fields are already coerced.
type RawMessage struct {
	CDMID             string
	PrimaryID         string
	SecondaryID       string
	PrimaryObjectType string
	TCA               string
	Created           string
	Probability       float64
	MissDistance      *float64 // meters, nil when not reported
}

// Message is a RawMessage with parsed timestamps.
type Message struct {
	CDMID        string
	TCA          time.Time
	Created      time.Time
	Probability  float64
	MissDistance *float64
}

// ConjunctionEvent is every report describing the same encounter.
type ConjunctionEvent struct {
	Key         string
	PrimaryID   string
	SecondaryID string
	TCA         time.Time // floored to the minute, zero when TCAValid is false
	TCAValid    bool
	TCARaw      string
	History     []Message // ascending by Created
}

// FeatureVector holds log10 probability, log1p miss distance and hours to TCA.
type FeatureVector [NumFeatures]float64

// Sequence is a fixed-length, chronologically ordered feature window.
type Sequence struct {
	Rows []FeatureVector
}

// Len returns the number of rows.
func (s Sequence) Len() int { return len(s.Rows) }

// Latest returns the most recent row.
func (s Sequence) Latest() FeatureVector {
	if len(s.Rows) == 0 {
		return FeatureVector{}
	}
	return s.Rows[len(s.Rows)-1]
}

// EventMeta is the per-event context downstream stages need besides the
// sequence itself.
type EventMeta struct {
	Key                string    `json:"key"`
	PrimaryID          string    `json:"primary_id"`
	SecondaryID        string    `json:"secondary_id"`
	TCA                time.Time `json:"tca"`
	TCAValid           bool      `json:"tca_valid"`
	LatestMissDistance *float64  `json:"latest_miss_distance,omitempty"`
	LatestProbability  float64   `json:"latest_probability"`
	LatestCreated      time.Time `json:"latest_created"`
	MaxProbability     float64   `json:"max_probability"`
	MinMissDistance    *float64  `json:"min_miss_distance,omitempty"`
	MessageCount       int       `json:"message_count"`
	ProbabilityHistory []float64 `json:"probability_history"`
}

// ForecastResult is the model output for a single event. Value is log10 Pc.
type ForecastResult struct {
	Value     float64
	Certainty float64
}
