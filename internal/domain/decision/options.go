package decision

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithThresholds sets the high and medium risk thresholds in log10 Pc.
// Ignored unless high >= medium.
func WithThresholds(high, medium float64) Option {
	return func(e *Engine) {
		if high >= medium {
			e.high = high
			e.medium = medium
		}
	}
}

// WithCriticalMissDistance sets the miss distance in meters below which an
// event is RED regardless of the forecast.
func WithCriticalMissDistance(meters float64) Option {
	return func(e *Engine) {
		if meters > 0 {
			e.criticalMiss = meters
		}
	}
}

// WithReactionWindow sets how long before TCA a maneuver must start.
func WithReactionWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.window = d
		}
	}
}

// WithTrendBand sets the relative change treated as STABLE.
func WithTrendBand(frac float64) Option {
	return func(e *Engine) {
		if frac > 0 {
			e.band = frac
		}
	}
}
