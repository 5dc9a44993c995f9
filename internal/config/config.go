// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Flat snake_case keys shared by YAML files and CONJ_ environment variables.
//   - New returns defaults; Load layers file and env on top and validates.
//   - Errors wrap this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Source kinds.
const (
	SourceNone = "none"
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SourceType selects where refreshes read reports from: none, file, http.
	SourceType string `koanf:"source_type"`
	// SourcePath is the JSON report file for the file source.
	SourcePath string `koanf:"source_path"`
	// SourceURL is the endpoint for the http source.
	SourceURL string `koanf:"source_url"`
	// SourceTimeout bounds one HTTP attempt.
	SourceTimeout time.Duration `koanf:"source_timeout"`
	// SourceRatePerSec limits HTTP requests per second.
	SourceRatePerSec float64 `koanf:"source_rate_per_sec"`
	// SourceMaxRetries bounds HTTP retries per fetch.
	SourceMaxRetries int `koanf:"source_max_retries"`
	// WatchSource triggers a refresh whenever the source file changes.
	WatchSource bool `koanf:"watch_source"`
	// PrimaryObjectTypes is a comma-separated filter, e.g. "PAYLOAD". Empty keeps all.
	PrimaryObjectTypes string `koanf:"primary_object_types"`

	// RefreshInterval schedules periodic refreshes; zero disables them.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	// RefreshTimeout bounds one whole refresh batch.
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`
	// QueueSize bounds pending refresh requests.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of refresh workers.
	WorkerCount int `koanf:"worker_count"`
	// ForecastWorkers bounds events processed concurrently in one batch.
	ForecastWorkers int `koanf:"forecast_workers"`

	// ModelPath is the model manifest. Empty runs without forecasts.
	ModelPath string `koanf:"model_path"`
	// SequenceLength is L; it must match the model.
	SequenceLength int `koanf:"sequence_length"`
	// MCSamples is the number of stochastic passes per event.
	MCSamples int `koanf:"mc_samples"`
	// CertaintyScale is k in 1/(1+k*sigma).
	CertaintyScale float64 `koanf:"certainty_scale"`

	// Decision thresholds; risk thresholds are log10 Pc.
	HighRiskThreshold    float64       `koanf:"high_risk_threshold"`
	MediumRiskThreshold  float64       `koanf:"medium_risk_threshold"`
	CriticalMissDistance float64       `koanf:"critical_miss_distance"`
	ReactionWindow       time.Duration `koanf:"reaction_window"`
	TrendBand            float64       `koanf:"trend_band"`

	// SQLitePath stores run history. Empty disables it.
	SQLitePath string `koanf:"sqlite_path"`
	// MaxTopLimit caps GET /events/top?limit.
	MaxTopLimit int `koanf:"max_top_limit"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// StatsInterval is how often the stats gauges are refreshed.
	StatsInterval time.Duration `koanf:"stats_interval"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		SourceType:           SourceNone,
		SourceTimeout:        10 * time.Second,
		SourceRatePerSec:     1,
		SourceMaxRetries:     3,
		RefreshInterval:      0,
		RefreshTimeout:       2 * time.Minute,
		QueueSize:            16,
		WorkerCount:          1,
		ForecastWorkers:      runtime.NumCPU(),
		SequenceLength:       10,
		MCSamples:            20,
		CertaintyScale:       100,
		HighRiskThreshold:    -4,
		MediumRiskThreshold:  -5,
		CriticalMissDistance: 1000,
		ReactionWindow:       6 * time.Hour,
		TrendBand:            0.1,
		MaxTopLimit:          100,
		MetricsEnabled:       true,
		StatsInterval:        10 * time.Second,
	}
}

// ObjectTypes splits PrimaryObjectTypes.
func (c *Config) ObjectTypes() []string {
	var out []string
	for _, t := range strings.Split(c.PrimaryObjectTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.ForecastWorkers < 1:
		return fmt.Errorf("%w: forecast_workers must be positive", ErrInvalidConfig)
	case c.SequenceLength < 1:
		return fmt.Errorf("%w: sequence_length must be positive", ErrInvalidConfig)
	case c.MCSamples < 2:
		return fmt.Errorf("%w: mc_samples must be at least 2", ErrInvalidConfig)
	case c.CertaintyScale <= 0:
		return fmt.Errorf("%w: certainty_scale must be positive", ErrInvalidConfig)
	case c.HighRiskThreshold < c.MediumRiskThreshold:
		return fmt.Errorf("%w: high_risk_threshold must not be below medium_risk_threshold", ErrInvalidConfig)
	case c.CriticalMissDistance <= 0:
		return fmt.Errorf("%w: critical_miss_distance must be positive", ErrInvalidConfig)
	case c.ReactionWindow < 0:
		return fmt.Errorf("%w: reaction_window must not be negative", ErrInvalidConfig)
	case c.TrendBand <= 0:
		return fmt.Errorf("%w: trend_band must be positive", ErrInvalidConfig)
	case c.MaxTopLimit < 1:
		return fmt.Errorf("%w: max_top_limit must be positive", ErrInvalidConfig)
	case c.StatsInterval <= 0:
		return fmt.Errorf("%w: stats_interval must be positive", ErrInvalidConfig)
	}

	switch c.SourceType {
	case SourceNone:
	case SourceFile:
		if c.SourcePath == "" {
			return fmt.Errorf("%w: source_path is required for the file source", ErrInvalidConfig)
		}
	case SourceHTTP:
		if c.SourceURL == "" {
			return fmt.Errorf("%w: source_url is required for the http source", ErrInvalidConfig)
		}
		if c.SourceRatePerSec <= 0 {
			return fmt.Errorf("%w: source_rate_per_sec must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidConfig, c.SourceType)
	}
	return nil
}
