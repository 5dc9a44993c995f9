package service

import (
	"time"

	"github.com/okian/conjunction/internal/adapters/repository"
	"github.com/okian/conjunction/internal/adapters/source"
	"github.com/okian/conjunction/internal/domain/decision"
	"github.com/okian/conjunction/internal/domain/forecast"
	"github.com/okian/conjunction/internal/domain/grouping"
	"github.com/okian/conjunction/internal/domain/sequence"
	"github.com/okian/conjunction/internal/domain/uncertainty"
	"github.com/okian/conjunction/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithModel sets the forecaster. Without one every event is GRAY.
func WithModel(m Forecaster) Option {
	return func(s *Service) {
		s.model = m
	}
}

// WithGrouper replaces the message grouper.
func WithGrouper(g grouping.Grouper) Option {
	return func(s *Service) {
		if g != nil {
			s.grouper = g
		}
	}
}

// WithSequenceBuilder replaces the sequence builder.
func WithSequenceBuilder(b *sequence.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithEstimator replaces the uncertainty estimator.
func WithEstimator(e *uncertainty.Estimator) Option {
	return func(s *Service) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithDecisionEngine replaces the decision engine.
func WithDecisionEngine(e *decision.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithSource sets where refreshes read reports from.
func WithSource(ds source.DataSource) Option {
	return func(s *Service) {
		s.source = ds
	}
}

// WithStore replaces the latest-snapshot store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithRunStore persists run history. The service closes it on Stop.
func WithRunStore(rs repository.RunStore) Option {
	return func(s *Service) {
		s.runStore = rs
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many refresh requests may wait.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithForecastWorkers bounds events estimated concurrently in one batch.
func WithForecastWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.forecastWorkers = n
		}
	}
}

// WithRefreshInterval schedules periodic refreshes. Zero disables them.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.refreshInterval = d
		}
	}
}

// WithRefreshTimeout bounds one refresh run.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithWatchPath refreshes whenever the file at path changes.
func WithWatchPath(path string) Option {
	return func(s *Service) {
		s.watchPath = path
	}
}

// WithLoadedModel is WithModel for a concrete model; nil leaves the
// service without one.
func WithLoadedModel(m *forecast.Model) Option {
	if m == nil {
		return func(*Service) {}
	}
	return WithModel(m)
}
