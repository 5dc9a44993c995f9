package source

import (
	"net/http"
	"time"

	"github.com/okian/conjunction/internal/domain/report"
	"github.com/okian/conjunction/pkg/logger"
)

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithFileLogger sets the FileSource logger.
func WithFileLogger(l logger.Logger) FileOption {
	return func(s *FileSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFileNormalizer overrides the record normalizer.
func WithFileNormalizer(n *report.Normalizer) FileOption {
	return func(s *FileSource) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds one request attempt.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(perSec float64) HTTPOption {
	return func(s *HTTPSource) {
		if perSec > 0 {
			s.rate = perSec
		}
	}
}

// WithMaxRetries bounds attempts after the first one.
func WithMaxRetries(n int) HTTPOption {
	return func(s *HTTPSource) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.initialBackoff = d
		}
	}
}

// WithHTTPLogger sets the HTTPSource logger.
func WithHTTPLogger(l logger.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce collapses bursts of file events into one request.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the Watcher logger.
func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}
