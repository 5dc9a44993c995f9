package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/internal/domain/report"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

const (
	defaultHTTPTimeout    = 10 * time.Second
	defaultRatePerSec     = 1.0
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	maxBackoffInterval    = 30 * time.Second
)

// HTTPSource GETs a JSON report feed. Requests are rate limited and
// transient failures are retried with exponential backoff.
type HTTPSource struct {
	url            string
	client         *http.Client
	timeout        time.Duration
	rate           float64
	retries        int
	initialBackoff time.Duration

	limiter    *rate.Limiter
	normalizer *report.Normalizer
	logger     logger.Logger
}

// NewHTTPSource creates an HTTPSource for url.
func NewHTTPSource(url string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:            url,
		client:         http.DefaultClient,
		timeout:        defaultHTTPTimeout,
		rate:           defaultRatePerSec,
		retries:        defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("source.http")
	}
	s.normalizer = report.NewNormalizer(report.WithLogger(s.logger))
	s.limiter = rate.NewLimiter(rate.Limit(s.rate), 1)
	return s
}

// Name implements the source label.
func (s *HTTPSource) Name() string { return "http" }

// Fetch downloads and decodes the feed.
func (s *HTTPSource) Fetch(ctx context.Context) ([]model.RawMessage, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initialBackoff
	eb.MaxInterval = maxBackoffInterval

	attempt := 0
	msgs, err := backoff.Retry(ctx, func() ([]model.RawMessage, error) {
		attempt++
		msgs, err := s.once(ctx)
		if err != nil {
			s.logger.Warn(ctx, "fetch attempt failed",
				logger.String("url", s.url),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
		}
		return msgs, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(s.retries+1)))
	if err != nil {
		metrics.RecordSourceFetch(s.Name(), "error")
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.url, err)
	}
	metrics.RecordSourceFetch(s.Name(), "ok")
	return msgs, nil
}

func (s *HTTPSource) once(ctx context.Context) ([]model.RawMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, err
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	msgs, err := decode(ctx, resp.Body, s.normalizer)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return msgs, nil
}
