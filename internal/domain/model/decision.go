package model

// Status is the traffic-light category of an event.
type Status string

// Statuses. GRAY means no forecast is available and is never a synonym
// for GREEN.
const (
	StatusRed    Status = "RED"
	StatusYellow Status = "YELLOW"
	StatusGreen  Status = "GREEN"
	StatusGray   Status = "GRAY"
)

// Severity orders statuses for ranking; GRAY sorts below GREEN.
func (s Status) Severity() int {
	switch s {
	case StatusRed:
		return 3
	case StatusYellow:
		return 2
	case StatusGreen:
		return 1
	default:
		return 0
	}
}

// Trend describes the forecast relative to the latest reported Pc.
type Trend string

// Trends.
const (
	TrendIncreasing Trend = "INCREASING"
	TrendDecreasing Trend = "DECREASING"
	TrendStable     Trend = "STABLE"
)

// DecisionRecord is the final per-event output.
type DecisionRecord struct {
	Key                 string    `json:"key"`
	ForecastValue       *float64  `json:"forecast_value"`       // log10 Pc, nil when GRAY
	ForecastProbability *float64  `json:"forecast_probability"` // 10^ForecastValue
	Certainty           float64   `json:"certainty"`
	Status              Status    `json:"status"`
	Trend               Trend     `json:"trend"`
	HoursToDecision     float64   `json:"hours_to_decision"`
	Overdue             bool      `json:"overdue"`
	DeadlineKnown       bool      `json:"deadline_known"`
	Meta                EventMeta `json:"meta"`
}

// HasForecast reports whether the record carries a model forecast.
func (d DecisionRecord) HasForecast() bool { return d.ForecastValue != nil }
